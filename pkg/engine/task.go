package engine

import (
	"context"
	"fmt"
)

// Perform drives a task through an action.
//
// install-or-upgrade: InstallOrUpgrade, WaitForCompletion, CollectInformation.
// uninstall: Uninstall, WaitForCompletion.
func Perform(ctx context.Context, task Task, action Action) error {
	switch action {
	case ActionInstallOrUpgrade:
		if err := task.InstallOrUpgrade(ctx); err != nil {
			return err
		}
		if err := task.WaitForCompletion(ctx, action); err != nil {
			return err
		}
		return task.CollectInformation(ctx)
	case ActionUninstall:
		if err := task.Uninstall(ctx); err != nil {
			return err
		}
		return task.WaitForCompletion(ctx, action)
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}
