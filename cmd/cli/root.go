package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sevigo/extpr/internal/logger"
)

var (
	githubToken string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "extpr-cli",
	Short: "extpr-cli is the command-line interface for the extension CI service.",
	Long: `A CLI for operating the extension CI service: minting and inspecting status
tokens for manual Jenkins runs, checking whether a repository qualifies as an
extension, and listing recent dispatches.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		slog.SetDefault(logger.NewLogger(logger.Config{Level: logLevel, Format: "text", Output: "stderr"}, os.Stderr))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&githubToken, "github-token", "t", "", "GitHub Token")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	if err := viper.BindPFlag("GITHUB_TOKEN", rootCmd.PersistentFlags().Lookup("github-token")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads in ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("EXTPR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
