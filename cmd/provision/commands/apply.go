package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/provisioner/pkg/engine"
)

func newApplyCommand(version string) *cobra.Command {
	return newRunCommand(version, engine.ActionInstallOrUpgrade, &cobra.Command{
		Use:   "apply",
		Short: "Install or upgrade every resource of a graph",
		Long: `Install or upgrade every resource of a graph file.

This command:
  - Loads and validates the graph file
  - Evaluates the policy gate (unless --skip-policy)
  - Provisions resources whose dependencies are done, in parallel
  - Waits for each resource's probes before releasing its dependents
  - Stops at the first failure and exits non-zero`,
		Example: `  # Apply graph.yaml with the default worker count
  provision apply

  # Apply a CUE directory with 8 workers
  provision apply -f ./cluster --workers 8

  # Record the run and expose metrics while it runs
  provision apply --state-db runs.db --metrics-addr :9090`,
	})
}

func newDestroyCommand(version string) *cobra.Command {
	return newRunCommand(version, engine.ActionUninstall, &cobra.Command{
		Use:   "destroy",
		Short: "Uninstall every resource of a graph",
		Long: `Uninstall every resource of a graph file.

Dependency edges are reversed: a resource is removed only after every
resource that depends on it has been removed.`,
		Example: `  # Remove everything graph.yaml installs
  provision destroy

  # Remove against another cluster
  provision destroy --kube-context staging`,
	})
}

func newRunCommand(version string, action engine.Action, cmd *cobra.Command) *cobra.Command {
	var flags runFlags

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gf, err := loadGraph(graphPath)
		if err != nil {
			return err
		}
		settings := flags.apply(cmd, gf.Settings)

		log.Info().
			Str("graph", gf.Source).
			Str("action", string(action)).
			Int("resources", len(gf.Resources)).
			Int("workers", settings.Workers).
			Msg("Starting run")

		if !flags.skipPolicy && !settings.Policy.Disabled {
			if _, err := checkPolicy(ctx, settings, gf.Resources, action, log.Logger); err != nil {
				return err
			}
		}

		rt, err := newRuntime(ctx, version, gf, settings)
		if err != nil {
			return err
		}
		defer rt.Close()

		result, runErr := rt.Run(ctx, action)
		if result == nil {
			return runErr
		}
		if err := printResult(cmd.OutOrStdout(), gf.ResourceNames(), result); err != nil {
			return err
		}
		return runErr
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.skipPolicy, "skip-policy", false, "do not evaluate policies before the run")
	return cmd
}

func printResult(w io.Writer, names []string, result *engine.RunResult) error {
	if jsonOutput {
		return writeJSON(w, result)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tSTATUS")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%s\n", name, result.Statuses[name])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nRun %s %s in %s\n", result.ID, result.Status, result.Duration.Round(time.Millisecond))
	if result.AbortReason != "" {
		fmt.Fprintf(w, "Aborted: %s\n", result.AbortReason)
	}
	return nil
}
