package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchctl/cmdutil"
	"github.com/fmuellner/telepathy-mission-control/internal/cliutil/output"
	"github.com/fmuellner/telepathy-mission-control/pkg/apiclient"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <unique-name>",
	Short: "Show details for one dispatch operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	op, err := client.GetDispatchOp(args[0])
	if err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, op)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, op)
	default:
		printDispatchOpDetail(op)
		return nil
	}
}

func printDispatchOpDetail(op *apiclient.DispatchOp) {
	fmt.Println()
	fmt.Printf("Unique name:     %s\n", op.UniqueName)
	fmt.Printf("Object path:     %s\n", op.ObjectPath)
	fmt.Printf("Connection:      %s\n", cmdutil.EmptyOr(op.Connection, "-"))
	fmt.Printf("Account:         %s\n", cmdutil.EmptyOr(op.Account, "-"))
	fmt.Printf("Interfaces:      %s\n", strings.Join(op.Interfaces, ", "))
	fmt.Printf("Needs approval:  %s\n", cmdutil.BoolToYesNo(op.NeedsApproval))
	fmt.Printf("Finished:        %s\n", cmdutil.BoolToYesNo(op.Finished))
	fmt.Printf("Possible handlers: %s\n", strings.Join(op.PossibleHandlers, ", "))
	fmt.Println()
	fmt.Println("Channels:")
	for _, ch := range op.Channels {
		fmt.Printf("  - %s (%s, %s) status=%s\n", ch.ObjectPath, ch.ChannelType, ch.Direction, cmdutil.EmptyOr(ch.Status, "-"))
	}
	fmt.Println()
}
