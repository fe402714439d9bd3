package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/provisioner/pkg/engine"
)

func newGraphCommand() *cobra.Command {
	var uninstall bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph in Graphviz format",
		Example: `  # Render the install order
  provision graph | dot -Tsvg > graph.svg

  # Render the uninstall order
  provision graph --uninstall`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gf, err := loadGraph(graphPath)
			if err != nil {
				return err
			}

			action := engine.ActionInstallOrUpgrade
			if uninstall {
				action = engine.ActionUninstall
			}
			g, err := engine.NewResourceGraph(gf.Resources, action)
			if err != nil {
				return err
			}

			dot, err := g.DOT()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), dot)
			return nil
		},
	}

	cmd.Flags().BoolVar(&uninstall, "uninstall", false, "render uninstall edges")

	return cmd
}
