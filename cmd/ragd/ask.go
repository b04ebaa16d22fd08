package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(flags *globalFlags) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from a user's enabled documents",
		Long: `Answer a question using only the documents the user has enabled for QA.

Examples:
  ragd ask "What CRM do we use?" --user alice`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			answer, err := a.registry.QA().Answer(ctx, strings.Join(args, " "), userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user whose documents are searched")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
