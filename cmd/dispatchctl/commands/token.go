package commands

import (
	"fmt"
	"time"

	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint control-plane bearer tokens",
	Long: `Mint bearer tokens for the control-plane API directly from a signing
key, without going through the server.

There is no user database behind the control-plane's JWT claims: any
holder of the signing key can mint a token for any subject and role, so
this command is local-only and never round-trips to dispatchd.`,
}

var (
	tokenSigningKey string
	tokenSubject    string
	tokenRole       string
	tokenIssuer     string
	tokenTTL        time.Duration
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new bearer token",
	Long: `Issue a bearer token signed with the given key.

Examples:
  dispatchctl token issue --signing-key "$DISPATCHD_CONTROLPLANE_JWT_SIGNING_KEY" \
    --subject operator-1 --role operator --ttl 1h`,
	RunE: runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSigningKey, "signing-key", "", "JWT signing key (required, must match dispatchd's controlplane.jwt_signing_key)")
	tokenIssueCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject, e.g. an operator's name (required)")
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", auth.RoleOperator, "Token role (admin|operator)")
	tokenIssueCmd.Flags().StringVar(&tokenIssuer, "issuer", "dispatchd", "Token issuer claim")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	_ = tokenIssueCmd.MarkFlagRequired("signing-key")
	_ = tokenIssueCmd.MarkFlagRequired("subject")

	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	svc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:     tokenSigningKey,
		Issuer:     tokenIssuer,
		DefaultTTL: tokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize signing service: %w", err)
	}

	signed, expiresAt, err := svc.IssueToken(tokenSubject, tokenRole, tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(signed)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires: %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
