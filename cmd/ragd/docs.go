package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newDocsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List and select a user's documents",
	}
	cmd.AddCommand(newDocsListCmd(flags), newDocsToggleCmd(flags), newDocsSearchCmd(flags))
	return cmd
}

func newDocsListCmd(flags *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			docs, err := a.registry.Documents().List(ctx, userID)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED\tQA")
			for _, d := range docs {
				enabled := "off"
				if d.EnabledForQA {
					enabled = "on"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.CreatedAt.Format(time.RFC3339), enabled)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the documents")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDocsToggleCmd(flags *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "toggle <document-id>...",
		Short: "Flip whether documents are used for QA",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if err := a.registry.Documents().Toggle(ctx, userID, args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Toggled %d document(s)\n", len(args))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the documents")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDocsSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Keyword search across a user's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			hits, err := a.registry.Documents().Search(ctx, userID, args[0], limit)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%s #%d (%.3f)\n  %s\n", h.DocumentID, h.Ordinal, h.Score, h.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the documents")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of hits")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
