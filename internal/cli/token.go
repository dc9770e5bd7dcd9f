package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/whisperapi/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token signed with JWT_SECRET_KEY",
	Long: `Issue a bearer token without going through POST /auth/token.

Examples:
  whisperctl token --subject batch-importer
  whisperctl token --api-key "$KEY"      # same subject the API would assign`,
	RunE: runToken,
}

// Flags
var (
	tokenSubject string
	tokenAPIKey  string
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject")
	tokenCmd.Flags().StringVar(&tokenAPIKey, "api-key", "", "Derive the subject from an API key")
	tokenCmd.MarkFlagsMutuallyExclusive("subject", "api-key")
}

func runToken(cmd *cobra.Command, args []string) error {
	if appConfig.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is not set")
	}

	subject := tokenSubject
	if tokenAPIKey != "" {
		subject = auth.SubjectForKey(tokenAPIKey)
	}
	if subject == "" {
		return fmt.Errorf("one of --subject or --api-key is required")
	}

	tok, err := auth.NewJWTMiddleware(appConfig.Auth.JWTSecret, appConfig.Auth.TokenLifetime).Issue(subject)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tok)
}
