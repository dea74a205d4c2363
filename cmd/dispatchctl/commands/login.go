package commands

import (
	"fmt"
	"net/url"

	"github.com/fmuellner/telepathy-mission-control/cmd/dispatchctl/cmdutil"
	"github.com/fmuellner/telepathy-mission-control/internal/cliutil/credentials"
	"github.com/fmuellner/telepathy-mission-control/internal/cliutil/prompt"
	"github.com/fmuellner/telepathy-mission-control/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	loginServer string
	loginToken  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a server URL and bearer token",
	Long: `Store a dispatchd server URL and bearer token for subsequent commands.

There is no login endpoint on the control-plane API: a token is minted
separately with 'dispatchctl token issue' (or by an operator holding the
signing key) and handed to this command, which only validates it against
the server and saves it locally.

Examples:
  # Store a server and token
  dispatchctl login --server http://localhost:8080 --token eyJhbGciOi...

  # Prompt for the token interactively
  dispatchctl login --server http://localhost:8080`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "Server URL (required on first login)")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Bearer token")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	serverURLStr := loginServer
	if serverURLStr == "" {
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx == nil || ctx.ServerURL == "" {
			return fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  dispatchctl login --server http://localhost:8080")
		}
		serverURLStr = ctx.ServerURL
	}

	parsedURL, err := url.Parse(serverURLStr)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "http"
		serverURLStr = parsedURL.String()
	}

	token := loginToken
	if token == "" {
		token, err = prompt.Masked("Token")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	client := apiclient.New(serverURLStr).WithToken(token)
	if _, err := client.Liveness(); err != nil {
		return fmt.Errorf("failed to reach %s: %w", serverURLStr, err)
	}

	contextName := store.GetCurrentContextName()
	if contextName == "" {
		contextName = "default"
	}

	if err := store.SetContext(contextName, &credentials.Context{
		ServerURL: serverURLStr,
		Token:     token,
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Logged in to %s\n", serverURLStr)
	fmt.Printf("Credentials saved to: %s\n", store.ConfigPath())

	return nil
}
