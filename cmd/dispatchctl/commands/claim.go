package commands

import (
	"os"

	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchctl/cmdutil"
	"github.com/fmuellner/telepathy-mission-control/pkg/apiclient"
	"github.com/spf13/cobra"
)

var claimCmd = &cobra.Command{
	Use:   "claim <unique-name> <caller>",
	Short: "Claim a dispatch operation's channels as caller",
	Long: `Claim a dispatch operation's channels as caller, blocking until the
operation finishes server-side.

Examples:
  dispatchctl claim do1 org.example.DispatchClient.Client.H1`,
	Args: cobra.ExactArgs(2),
	RunE: runClaim,
}

func runClaim(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	entries, err := client.Claim(args[0], args[1])
	if err != nil {
		return err
	}

	return cmdutil.PrintOutput(os.Stdout, entries, len(entries) == 0, "No channels claimed.", claimTable(entries))
}

type claimTableData struct {
	entries []apiclient.HandlerEntry
}

func claimTable(entries []apiclient.HandlerEntry) *claimTableData {
	return &claimTableData{entries: entries}
}

func (t *claimTableData) Headers() []string {
	return []string{"CHANNEL", "HANDLER", "ACCOUNT"}
}

func (t *claimTableData) Rows() [][]string {
	rows := make([][]string, 0, len(t.entries))
	for _, e := range t.entries {
		rows = append(rows, []string{e.ChannelPath, e.HandlerName, cmdutil.EmptyOr(e.AccountPath, "-")})
	}
	return rows
}
