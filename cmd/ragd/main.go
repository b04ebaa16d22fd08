// Ragd answers questions from a user's own uploaded documents.
//
// Usage:
//
//	# Serve the HTTP API
//	ragd serve
//
//	# Serve MCP tools on stdio
//	ragd mcp
//
//	# One-off operations
//	ragd ingest handbook.md --user alice
//	ragd docs toggle <document-id> --user alice
//	ragd ask "What CRM do we use?" --user alice
//
// Configuration is read from ~/.config/ragd/config.yaml, a .env file and
// RAGD_* environment variables.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "ragd",
		Short: "Question answering over your own documents",
		Long: `ragd stores uploaded documents per user, embeds their chunks and answers
questions using only the documents each user has enabled for QA.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/ragd/config.yaml)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before RAGD_* variables")

	root.AddCommand(
		newServeCmd(flags),
		newMCPCmd(flags),
		newIngestCmd(flags),
		newAskCmd(flags),
		newDocsCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "ragd by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
