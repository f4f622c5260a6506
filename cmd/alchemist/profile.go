package main

import (
	"encoding/json"
	"io"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/spf13/cobra"
)

func profileCmd() *cobra.Command {
	var (
		column string
		topN   int
	)
	cmd := &cobra.Command{
		Use:   "profile <file>",
		Short: "Describe a file or one of its columns",
		Long: `Print the shape, column types and missing counts of a file as JSON.
With --column, print that column's value profile instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, args[0], nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			if column == "" {
				info, err := sess.Info(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			}
			profile, err := sess.Profile(ctx, column, topN)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
	cmd.Flags().StringVarP(&column, "column", "c", "", "column to profile")
	cmd.Flags().IntVar(&topN, "top-n", store.DefaultTopN, "most frequent values to list")
	return cmd
}

func clustersCmd() *cobra.Command {
	var (
		column    string
		maxUnique int
	)
	cmd := &cobra.Command{
		Use:   "clusters <file>",
		Short: "Suggest groups of near-duplicate values in a column",
		Long: `Group the distinct values of a column by fingerprint (case, accents,
punctuation and word order ignored) and print each group with its most
frequent member as the suggested canonical value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, args[0], nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			suggestions, err := sess.Suggest(ctx, column, maxUnique)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), suggestions)
		},
	}
	cmd.Flags().StringVarP(&column, "column", "c", "", "column to cluster")
	cmd.Flags().IntVar(&maxUnique, "max-unique", cluster.DefaultMaxUnique, "fail when the column has more distinct values")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
