package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/danchege/Alchemist/internal/session"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/danchege/Alchemist/internal/view"
	"github.com/spf13/cobra"
)

func cleanCmd() *cobra.Command {
	var (
		pipelinePath string
		output       string
		format       string
		dryRun       bool
	)
	cmd := &cobra.Command{
		Use:   "clean <file>",
		Short: "Run a cleaning pipeline over a file",
		Long: `Apply the operations of a pipeline file to a data file as one batch and
write the result. Without --output the cleaned data goes to stdout.

With --dry-run the pipeline runs on a sample and only the summaries are
printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(pipelinePath)
			if err != nil {
				return err
			}
			largeOps, err := p.LargeFileKinds()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := openSession(ctx, args[0], largeOps)
			if err != nil {
				return err
			}
			defer sess.Close()

			if dryRun {
				preview, err := sess.Preview(ctx, p.Operations, 0)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), preview)
			}

			res, err := sess.Apply(ctx, p.Operations)
			if err != nil {
				return err
			}
			for _, s := range res.Summaries {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d %s affected\n", s.Operation, s.Affected, s.Unit)
			}

			return writeOutput(ctx, cmd.OutOrStdout(), sess, p.View, output, format)
		},
	}
	cmd.Flags().StringVarP(&pipelinePath, "pipeline", "p", "", "pipeline file (yaml or json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: csv, tsv, json, sql, xlsx (default: from output extension)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview the pipeline on a sample without writing")
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}

func convertCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert a file to another format",
		Long: `Load a file and write it in the format named by --format or the output
extension. Use "-" as output to write to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, args[0], nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			output := args[1]
			if output == "-" {
				output = ""
			}
			return writeOutput(ctx, cmd.OutOrStdout(), sess, nil, output, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: csv, tsv, json, sql, xlsx (default: from output extension)")
	return cmd
}

// outputFormat picks the export format from the flag or the output file
// extension, defaulting to CSV.
func outputFormat(flag, output string) (store.Format, error) {
	if flag != "" {
		return store.ParseFormat(flag)
	}
	if ext := strings.TrimPrefix(filepath.Ext(output), "."); ext != "" {
		return store.ParseFormat(ext)
	}
	return store.FormatCSV, nil
}

// writeOutput exports the session to output, or to stdout when output is
// empty. A view limits the rows written.
func writeOutput(ctx context.Context, stdout io.Writer, sess *session.Session, v *store.View, output, formatFlag string) error {
	format, err := outputFormat(formatFlag, output)
	if err != nil {
		return err
	}
	if v != nil {
		if _, err := sess.SetView(ctx, view.State{View: *v}); err != nil {
			return err
		}
	}

	name := sess.FileName
	if output != "" {
		name = filepath.Base(output)
	}

	if output == "" {
		return sess.Export(ctx, stdout, format, v != nil, name)
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := sess.Export(ctx, f, format, v != nil, name); err != nil {
		f.Close()
		os.Remove(output)
		return err
	}
	return f.Close()
}
