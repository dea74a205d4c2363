package commands

import (
	"os"

	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchctl/cmdutil"
	"github.com/fmuellner/telepathy-mission-control/pkg/apiclient"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage account storage",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known accounts",
	Long: `List every account known to the account-storage backends
configured on the server, highest-priority backend first. Credential
hashes are never returned by the server and never printed here.`,
	RunE: runAccountsList,
}

func init() {
	accountsCmd.AddCommand(accountsListCmd)
}

type accountTableData struct {
	accounts []apiclient.Account
}

func (t *accountTableData) Headers() []string {
	return []string{"ACCOUNT ID", "DISPLAY NAME", "PROVIDER", "ENABLED"}
}

func (t *accountTableData) Rows() [][]string {
	rows := make([][]string, 0, len(t.accounts))
	for _, a := range t.accounts {
		rows = append(rows, []string{
			a.ID,
			cmdutil.EmptyOr(a.DisplayName, "-"),
			a.Provider,
			cmdutil.BoolToYesNo(a.Enabled),
		})
	}
	return rows
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	accounts, err := client.ListAccounts()
	if err != nil {
		return err
	}

	return cmdutil.PrintOutput(os.Stdout, accounts, len(accounts) == 0, "No accounts.", &accountTableData{accounts: accounts})
}
