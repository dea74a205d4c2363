package commands

import (
	"fmt"

	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchctl/cmdutil"
	"github.com/fmuellner/telepathy-mission-control/internal/cliutil/prompt"
	"github.com/spf13/cobra"
)

var approveForce bool

var approveCmd = &cobra.Command{
	Use:   "approve <unique-name>",
	Short: "Interactively approve a pending dispatch operation",
	Long: `Walk through a dispatch operation awaiting approval, letting an operator
pick one of its possible handlers and confirm the assignment.

This exists to simulate a human approver end-to-end during manual
testing, standing in for the interactive approval a connection
manager's own UI would normally drive.

Examples:
  dispatchctl approve do1`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().BoolVarP(&approveForce, "force", "f", false, "Skip the confirmation prompt")
}

func runApprove(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	uniqueName := args[0]

	op, err := client.GetDispatchOp(uniqueName)
	if err != nil {
		return err
	}

	if !op.NeedsApproval {
		fmt.Println("This dispatch operation does not need approval.")
		return nil
	}
	if len(op.PossibleHandlers) == 0 {
		return fmt.Errorf("dispatch operation %s has no possible handlers to approve", uniqueName)
	}

	fmt.Printf("Dispatch operation %s (account %s) has %d channel(s) awaiting approval:\n",
		uniqueName, cmdutil.EmptyOr(op.Account, "-"), len(op.Channels))
	for _, ch := range op.Channels {
		fmt.Printf("  - %s (%s)\n", ch.ObjectPath, ch.ChannelType)
	}

	handler, err := prompt.SelectString("Select a handler", op.PossibleHandlers)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Assign to %s?", handler), approveForce)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := client.HandleWith(uniqueName, handler); err != nil {
		return err
	}

	cmdutil.PrintSuccess(fmt.Sprintf("dispatch operation %s assigned to %s", uniqueName, handler))
	return nil
}
