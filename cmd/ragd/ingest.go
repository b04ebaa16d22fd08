package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
)

func newIngestCmd(flags *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "ingest <file-or-directory>",
		Short: "Ingest documents for a user",
		Long: `Extract, chunk and embed files and store them for the given user.

A directory is walked recursively. Paths listed in .ragdignore or .gitignore
at its root are skipped, as are files with unsupported extensions. Duplicate
and empty files are reported without stopping the walk.

Examples:
  ragd ingest handbook.md --user alice
  ragd ingest q3-report.docx --user alice
  ragd ingest ./wiki --user alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			if info.IsDir() {
				return ingestDir(ctx, cmd.OutOrStdout(), a.ingester, userID, args[0])
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			res, err := a.registry.Ingest().Ingest(ctx, ingest.Request{
				UserID:   userID,
				Filename: filepath.Base(args[0]),
				Body:     f,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%d chunks)\n", res.DocumentID, res.Chunks)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the documents")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func ingestDir(ctx context.Context, w io.Writer, svc *ingest.Service, userID, root string) error {
	rules, err := ignore.NewParser(ignore.DefaultFiles, ignore.DefaultPatterns).Load(root)
	if err != nil {
		return fmt.Errorf("loading ignore rules: %w", err)
	}

	res, err := svc.IngestDir(ctx, userID, root, rules)
	if res != nil {
		for _, r := range res.Ingested {
			fmt.Fprintf(w, "stored   %s  %s (%d chunks)\n", r.DocumentID, r.Path, r.Chunks)
		}
		for _, s := range res.Skipped {
			fmt.Fprintf(w, "skipped  %s: %s\n", s.Path, s.Reason)
		}
		fmt.Fprintf(w, "%d stored, %d skipped\n", len(res.Ingested), len(res.Skipped))
	}
	return err
}
