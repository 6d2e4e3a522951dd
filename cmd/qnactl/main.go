// qnactl inspects and exports saved inquiry transcripts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/peaklee4u/inquirytutor/internal/config"
	"github.com/peaklee4u/inquirytutor/internal/domain"
	"github.com/peaklee4u/inquirytutor/internal/store"
)

// openFunc opens the transcript repository for a command run.
type openFunc func(driver, dataSource string) (store.Repository, error)

type dbFlags struct {
	driver string
	source string
}

func main() {
	loadDotEnv(slog.Default())
	if err := newRootCmd(store.Open).Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads .env files (default ./.env) into the environment.
func loadDotEnv(logger *slog.Logger, files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Info("No .env file found, using environment variables", "error", err)
	}
}

func newRootCmd(open openFunc) *cobra.Command {
	var db dbFlags

	root := &cobra.Command{
		Use:           "qnactl",
		Short:         "Inspect saved inquiry transcripts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&db.driver, "driver", "", "database driver (sqlite or postgres); defaults to DB_DRIVER")
	root.PersistentFlags().StringVar(&db.source, "db", "", "database path or DSN; defaults to the DB_* environment")

	root.AddCommand(newListCmd(open, &db), newShowCmd(open, &db), newExportCmd(open, &db))
	return root
}

// withRepo resolves the database from flags or the environment and runs fn.
func withRepo(open openFunc, db *dbFlags, fn func(store.Repository) error) error {
	driver, source := db.driver, db.source
	if driver == "" || source == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if driver == "" {
			driver = cfg.DB.Driver
		}
		if source == "" {
			source = cfg.DB.DataSource()
		}
	}

	repo, err := open(driver, source)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = repo.Close() }()
	return fn(repo)
}

func newListCmd(open openFunc, db *dbFlags) *cobra.Command {
	var filter store.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transcripts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(open, db, func(repo store.Repository) error {
				ts, err := repo.ListTranscripts(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return writeTable(cmd.OutOrStdout(), ts)
			})
		},
	}
	cmd.Flags().StringVar(&filter.StudentNumber, "number", "", "only this student number")
	cmd.Flags().IntVar(&filter.Limit, "limit", store.DefaultListLimit, "maximum rows")
	return cmd
}

func newShowCmd(open openFunc, db *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			return withRepo(open, db, func(repo store.Repository) error {
				t, err := repo.GetTranscript(cmd.Context(), id)
				if err != nil {
					return err
				}
				if t == nil {
					return fmt.Errorf("transcript %d not found", id)
				}
				writeTranscript(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}
}

func newExportCmd(open openFunc, db *dbFlags) *cobra.Command {
	var filter store.ListFilter

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write transcripts as newline-delimited JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(open, db, func(repo store.Repository) error {
				return exportNDJSON(cmd.Context(), cmd.OutOrStdout(), repo, filter)
			})
		},
	}
	cmd.Flags().StringVar(&filter.StudentNumber, "number", "", "only this student number")
	cmd.Flags().IntVar(&filter.Limit, "limit", 1000, "maximum rows")
	return cmd
}

func writeTable(w io.Writer, ts []*domain.Transcript) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tNAME\tTIME\tMESSAGES")
	for _, t := range ts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n",
			t.ID, t.StudentNumber, t.StudentName, t.CreatedAt.Local().Format(time.DateTime), len(t.Messages))
	}
	return tw.Flush()
}

func writeTranscript(w io.Writer, t *domain.Transcript) {
	fmt.Fprintf(w, "#%d  %s %s  %s\n\n", t.ID, t.StudentNumber, t.StudentName, t.CreatedAt.Local().Format(time.DateTime))
	for _, m := range t.Messages {
		fmt.Fprintf(w, "[%s]\n%s\n\n", m.Role, m.Content.PlainText())
	}
}

func exportNDJSON(ctx context.Context, w io.Writer, repo store.Repository, filter store.ListFilter) error {
	ts, err := repo.ListTranscripts(ctx, filter)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, t := range ts {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encode transcript %d: %w", t.ID, err)
		}
	}
	return nil
}
