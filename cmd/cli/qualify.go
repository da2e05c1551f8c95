package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sevigo/extpr/internal/github"
	"github.com/sevigo/extpr/internal/gitutil"
	"github.com/sevigo/extpr/internal/qualify"
)

var manifestPath string

var qualifyCmd = &cobra.Command{
	Use:   "qualify <repo> <ref>",
	Short: "Checks whether a repository qualifies as an extension at a ref",
	Long: `Reads the extension manifest at the given branch, tag or commit and reports
whether a pull request at that ref would start builds. <repo> accepts owner/repo,
a repository URL or a pull request URL.`,
	Args: cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		token := viper.GetString("GITHUB_TOKEN")
		if token == "" {
			return errors.New("a GitHub token is required, set --github-token or EXTPR_GITHUB_TOKEN")
		}
		owner, repo, err := gitutil.ParseRepository(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client := github.NewPATClient(ctx, token, slog.Default())
		checker := qualify.NewChecker(manifestPath)
		result, err := checker.Check(ctx, client, qualify.RepoRef{Owner: owner, Repo: repo, Ref: args[1]})
		if err != nil {
			errorColor.Printf("Could not read %s\n", checker.ManifestPath())
			return err
		}

		fmt.Printf("%s/%s @ %s: ", owner, repo, args[1])
		if result.Qualified {
			successColor.Println("qualifies")
			return nil
		}
		warnColor.Printf("does not qualify (%s)\n", result.Reason)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	qualifyCmd.Flags().StringVar(&manifestPath, "manifest", qualify.DefaultManifestPath, "Manifest path that marks a repository as an extension")
	rootCmd.AddCommand(qualifyCmd)
}
