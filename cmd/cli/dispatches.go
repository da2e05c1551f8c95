package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/db"
	"github.com/sevigo/extpr/internal/gitutil"
	"github.com/sevigo/extpr/internal/storage"
)

var (
	dispatchRepo  string
	dispatchPR    string
	dispatchLimit int
	dispatchJSON  bool
)

var dispatchesCmd = &cobra.Command{
	Use:   "dispatches",
	Short: "Lists the most recent build dispatches",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		repo, prNumber, err := dispatchFilter()
		if err != nil {
			return err
		}

		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		records, err := store.ListDispatches(ctx, repo, dispatchLimit)
		if err != nil {
			return fmt.Errorf("failed to retrieve dispatches: %w", err)
		}
		if prNumber > 0 {
			records = filterByPR(records, prNumber)
		}

		if dispatchJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(records)
		}

		if len(records) == 0 {
			dimColor.Println("No dispatches recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WHEN\tREPOSITORY\tPR\tSHA\tCONTEXT\tJOB\tOUTCOME")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t#%d\t%s\t%s\t%s\t%s\n",
				r.CreatedAt.Local().Format(time.RFC822),
				r.RepoFullName,
				r.PRNumber,
				shortSHA(r.HeadSHA),
				r.Context,
				r.Job,
				outcomeColor(r.Outcome).Sprint(r.Outcome),
			)
		}
		return w.Flush()
	},
}

// dispatchFilter resolves --repo and --pr into a repository name and an
// optional PR number.
func dispatchFilter() (string, int, error) {
	if dispatchPR != "" {
		owner, repo, number, err := gitutil.ParsePullRequestURL(dispatchPR)
		if err != nil {
			return "", 0, err
		}
		return owner + "/" + repo, number, nil
	}
	if dispatchRepo == "" {
		return "", 0, nil
	}
	owner, repo, err := gitutil.ParseRepository(dispatchRepo)
	if err != nil {
		return "", 0, err
	}
	return owner + "/" + repo, 0, nil
}

func filterByPR(records []*core.DispatchRecord, number int) []*core.DispatchRecord {
	out := records[:0]
	for _, r := range records {
		if r.PRNumber == number {
			out = append(out, r)
		}
	}
	return out
}

// openStore connects to the configured dispatch store.
func openStore() (storage.Store, func(), error) {
	dbCfg, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, nil, err
	}
	if dbCfg.Driver == "memory" {
		return nil, nil, errors.New("DB_DRIVER is memory: dispatches only live inside the server process")
	}
	database, cleanup, err := db.NewDatabase(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dispatch store: %w", err)
	}
	return storage.NewStore(database.DB), cleanup, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	dispatchesCmd.Flags().StringVar(&dispatchRepo, "repo", "", "Only show dispatches for this repository (owner/repo or URL)")
	dispatchesCmd.Flags().StringVar(&dispatchPR, "pr", "", "Only show dispatches for this pull request URL")
	dispatchesCmd.Flags().IntVar(&dispatchLimit, "limit", 50, "Maximum number of dispatches to show")
	dispatchesCmd.Flags().BoolVar(&dispatchJSON, "json", false, "Output dispatches as JSON")
	dispatchesCmd.MarkFlagsMutuallyExclusive("repo", "pr")
	rootCmd.AddCommand(dispatchesCmd)
}
