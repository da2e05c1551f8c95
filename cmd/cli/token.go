package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/gitutil"
	"github.com/sevigo/extpr/internal/statustoken"
)

var (
	signRepo           string
	signSHA            string
	signContext        string
	signEventID        string
	signInstallationID int64
	tokenJSON          bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Signs and inspects status tokens",
	Long: `Status tokens authorise a single build to report its result back to the
service. These commands use STATUS_SECRET and STATUS_TOKEN_TTL from the
environment, so they must run with the same secret as the server.`,
}

var tokenSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Signs a token for a manually started build",
	RunE: func(_ *cobra.Command, _ []string) error {
		owner, repo, err := gitutil.ParseRepository(signRepo)
		if err != nil {
			return err
		}
		codec, err := loadCodec()
		if err != nil {
			return err
		}

		eventID := signEventID
		if eventID == "" {
			eventID = "manual-" + uuid.NewString()
		}
		issued, err := codec.Issue(statustoken.Payload{
			EventID:        eventID,
			InstallationID: signInstallationID,
			Template: core.StatusTemplate{
				Owner:   owner,
				Repo:    repo,
				SHA:     signSHA,
				Context: signContext,
			},
		})
		if err != nil {
			return err
		}

		if tokenJSON {
			return writeJSON(map[string]any{
				"token":      issued.Token,
				"id":         issued.ID,
				"expires_at": issued.ExpiresAt,
			})
		}
		fmt.Println(issued.Token)
		dimColor.Fprintf(os.Stderr, "id %s, expires %s\n", issued.ID, issued.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verifies a token and prints the status it may update",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		codec, err := loadCodec()
		if err != nil {
			return err
		}
		claims, err := codec.Verify(args[0])
		if err != nil {
			errorColor.Fprintln(os.Stderr, "Token rejected")
			return err
		}

		if tokenJSON {
			return writeJSON(claims)
		}
		titleColor.Println("Token is valid")
		fmt.Printf("  Repository:   %s\n", claims.Template.FullName())
		fmt.Printf("  Commit:       %s\n", claims.Template.SHA)
		fmt.Printf("  Context:      %s\n", claims.Template.Context)
		fmt.Printf("  Event:        %s\n", claims.EventID)
		fmt.Printf("  Installation: %d\n", claims.InstallationID)
		fmt.Printf("  Token ID:     %s\n", claims.ID)
		expires := claims.ExpiresAt.Time
		remaining := time.Until(expires).Round(time.Minute)
		fmt.Printf("  Expires:      %s ", expires.Local().Format(time.RFC1123))
		warnColor.Printf("(in %s)\n", remaining)
		return nil
	},
}

func loadCodec() (*statustoken.Codec, error) {
	cfg, err := config.LoadStatusTokenConfig()
	if err != nil {
		return nil, err
	}
	return statustoken.NewCodec(cfg.Secret, statustoken.WithTTL(cfg.TTL))
}

func writeJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	tokenSignCmd.Flags().StringVar(&signRepo, "repo", "", "Repository the build reports to (owner/repo or URL)")
	tokenSignCmd.Flags().StringVar(&signSHA, "sha", "", "Commit SHA the status is written on")
	tokenSignCmd.Flags().StringVar(&signContext, "context", "CiviCRM @ Master", "Status check name")
	tokenSignCmd.Flags().StringVar(&signEventID, "event-id", "", "Event id recorded in the token (default manual-<uuid>)")
	tokenSignCmd.Flags().Int64Var(&signInstallationID, "installation-id", 0, "GitHub App installation id of the repository")
	_ = tokenSignCmd.MarkFlagRequired("repo")
	_ = tokenSignCmd.MarkFlagRequired("sha")
	_ = tokenSignCmd.MarkFlagRequired("installation-id")

	tokenCmd.PersistentFlags().BoolVar(&tokenJSON, "json", false, "Output as JSON")
	tokenCmd.AddCommand(tokenSignCmd, tokenVerifyCmd)
	rootCmd.AddCommand(tokenCmd)
}
