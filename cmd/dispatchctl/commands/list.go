package commands

import (
	"fmt"
	"os"

	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchctl/cmdutil"
	"github.com/fmuellner/telepathy-mission-control/pkg/apiclient"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List dispatch operations",
	Long: `List every channel dispatch operation currently tracked by the server.

Examples:
  dispatchctl list
  dispatchctl list --output json`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	ops, err := client.ListDispatchOps()
	if err != nil {
		return err
	}

	return cmdutil.PrintOutput(os.Stdout, ops, len(ops) == 0, "No dispatch operations.", dispatchOpTable(ops))
}

type dispatchOpTableData struct {
	ops []apiclient.DispatchOp
}

func dispatchOpTable(ops []apiclient.DispatchOp) *dispatchOpTableData {
	return &dispatchOpTableData{ops: ops}
}

func (t *dispatchOpTableData) Headers() []string {
	return []string{"UNIQUE NAME", "ACCOUNT", "CHANNELS", "NEEDS APPROVAL", "FINISHED"}
}

func (t *dispatchOpTableData) Rows() [][]string {
	rows := make([][]string, 0, len(t.ops))
	for _, op := range t.ops {
		rows = append(rows, []string{
			op.UniqueName,
			cmdutil.EmptyOr(op.Account, "-"),
			fmt.Sprintf("%d", len(op.Channels)),
			cmdutil.BoolToYesNo(op.NeedsApproval),
			cmdutil.BoolToYesNo(op.Finished),
		})
	}
	return rows
}
