package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/provisioner/pkg/config"
	"github.com/openfroyo/provisioner/pkg/engine"
	"github.com/openfroyo/provisioner/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var (
		watch      bool
		skipPolicy bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a graph file without running it",
		Long: `Validate a graph file without touching any cluster or host.

This command:
  - Validates the graph file against its schema and field rules
  - Builds the dependency graph for both install and uninstall
  - Evaluates the built-in and configured policies

With --watch it revalidates whenever the graph file or a policy file changes.`,
		Example: `  # Validate graph.yaml
  provision validate

  # Revalidate on every save
  provision validate -f cluster.cue --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			gf, err := loadGraph(graphPath)
			if err != nil {
				return err
			}
			noPolicy := skipPolicy || gf.Settings.Policy.Disabled

			pe, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}
			if !noPolicy && len(gf.Settings.Policy.Paths) > 0 {
				if err := pe.LoadPolicies(ctx, gf.Settings.Policy.Paths); err != nil {
					return err
				}
			}

			err = validateGraph(ctx, out, gf, pe, !noPolicy)
			if !watch {
				return err
			}
			if err != nil {
				fmt.Fprintf(out, "Invalid: %v\n", err)
			}
			return watchGraph(ctx, out, gf.Settings.Policy.Paths, pe, !noPolicy)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "revalidate when the graph or policy files change")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "do not evaluate policies")

	return cmd
}

// validateGraph checks that the graph builds for both actions and that no
// blocking policy is violated.
func validateGraph(ctx context.Context, out io.Writer, gf *config.GraphFile, pe *policy.Engine, withPolicy bool) error {
	for _, action := range []engine.Action{engine.ActionInstallOrUpgrade, engine.ActionUninstall} {
		if _, err := engine.NewResourceGraph(gf.Resources, action); err != nil {
			return err
		}
	}

	warnings := 0
	if withPolicy {
		result, err := evaluatePolicy(ctx, pe, gf.Resources, engine.ActionInstallOrUpgrade, log.Logger)
		if err != nil {
			return err
		}
		warnings = len(result.Warnings)
	}

	fmt.Fprintf(out, "%s: %d resources, %d policy warnings\n", gf.Source, len(gf.Resources), warnings)
	return nil
}

// watchGraph revalidates on change until ctx is done.
func watchGraph(ctx context.Context, out io.Writer, policyPaths []string, pe *policy.Engine, withPolicy bool) error {
	revalidate := func() {
		gf, err := loadGraph(graphPath)
		if err == nil {
			err = validateGraph(ctx, out, gf, pe, withPolicy)
		}
		if err != nil {
			fmt.Fprintf(out, "Invalid: %v\n", err)
		}
	}

	loader := policy.NewLoader(log.Logger)
	err := loader.Watch(ctx, policyPaths, []string{graphPath}, func(policies []policy.Policy) error {
		if withPolicy {
			if err := pe.ReplacePolicies(ctx, policies); err != nil {
				return err
			}
		}
		revalidate()
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("graph", graphPath).Msg("Watching for changes")
	<-ctx.Done()
	return nil
}
