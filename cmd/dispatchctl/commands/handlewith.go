package commands

import (
	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchctl/cmdutil"
	"github.com/spf13/cobra"
)

var handleWithCmd = &cobra.Command{
	Use:   "handle-with <unique-name> <handler>",
	Short: "Assign a dispatch operation's channels to a handler",
	Long: `Assign all channels of a dispatch operation to the named handler.

Examples:
  dispatchctl handle-with do1 org.example.DispatchClient.Client.H1`,
	Args: cobra.ExactArgs(2),
	RunE: runHandleWith,
}

func runHandleWith(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.HandleWith(args[0], args[1]); err != nil {
		return err
	}

	cmdutil.PrintSuccess("dispatch operation assigned to " + args[1])
	return nil
}
