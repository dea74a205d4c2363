package commands

import (
	"fmt"
	"os"

	"github.com/fmuellner/telepathy-mission-control/pkg/filterplugin"
	"github.com/spf13/cobra"
)

// filtersCmd and its subcommands are offline: they inspect the
// filterplugin package directly rather than calling the control-plane
// API, so they work without a running dispatchd.
var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Inspect available filter plugins",
}

var filtersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List builtin filter plugin names",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range filterplugin.BuiltinNames() {
			fmt.Println(name)
		}
		return nil
	},
}

var filtersSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for hot-loaded filter rule files",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := filterplugin.Schema()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(schema, '\n'))
		return err
	},
}

func init() {
	filtersCmd.AddCommand(filtersListCmd)
	filtersCmd.AddCommand(filtersSchemaCmd)
}
