package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/originlink/internal/config"
	"github.com/nao1215/originlink/internal/database"
	"github.com/nao1215/originlink/internal/report"
)

// defaultHistoryLimit is the number of runs listed when --limit is not set.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// Its subcommands read the run history saved by replace.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and compare past runs",
		Long: `History reads the runs saved by 'originlink replace'.

Every finished run is stored with its statistics, its download outcomes and
the references it rewrote. Use the subcommands to list runs, show one in
detail, or compare two runs to see which assets appeared, disappeared or
changed status.

Examples:
  # List the latest runs
  originlink history list

  # Show run 3 with every rewritten reference
  originlink history show 3 --refs

  # Compare run 3 with run 5
  originlink history diff 3 5`,
	}

	cmd.PersistentFlags().String("db-dir", "",
		"History database directory (default: XDG data directory)")
	cmd.PersistentFlags().BoolP("json", "j", false,
		"Output in JSON format")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDiffCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			return withHistoryDB(cmd, func(ctx context.Context, db *database.HistoryDB, jsonOut bool) error {
				return listRuns(ctx, db, cmd.OutOrStdout(), limit, jsonOut)
			})
		},
	}
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs to list (0 lists all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the summary of a past run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			refs, err := cmd.Flags().GetBool("refs")
			if err != nil {
				return err
			}
			return withHistoryDB(cmd, func(ctx context.Context, db *database.HistoryDB, jsonOut bool) error {
				return showRun(ctx, db, cmd.OutOrStdout(), id, refs, jsonOut)
			})
		},
	}
	cmd.Flags().Bool("refs", false, "Also list every rewritten reference")
	return cmd
}

func newHistoryDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from-id> <to-id>",
		Short: "Compare the downloads of two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			to, err := parseRunID(args[1])
			if err != nil {
				return err
			}
			return withHistoryDB(cmd, func(ctx context.Context, db *database.HistoryDB, jsonOut bool) error {
				return diffRuns(ctx, db, cmd.OutOrStdout(), from, to, jsonOut)
			})
		},
	}
}

// parseRunID parses a positive run ID argument.
func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID %q: must be a positive integer", s)
	}
	return id, nil
}

// withHistoryDB opens the history database selected by the --db-dir flag
// and runs fn with it.
func withHistoryDB(cmd *cobra.Command, fn func(ctx context.Context, db *database.HistoryDB, jsonOut bool) error) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return fn(cmd.Context(), db, jsonOut)
}

// listRuns prints the run history as a table.
func listRuns(ctx context.Context, db *database.HistoryDB, out io.Writer, limit int, jsonOut bool) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if jsonOut {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the history.")
		fmt.Fprintln(out, "\nUse 'originlink replace' to localize a site.")
		return nil
	}

	fmt.Fprintf(out, "Run history (%d runs):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-11s  %-8s  %-12s  %-10s  %s\n",
		"ID", "Date", "State", "Links", "Downloads", "Size", "Source")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))

	for _, meta := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-11s  %-8s  %-12s  %-10s  %s -> %s\n",
			meta.ID,
			meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
			meta.State,
			meta.LinkType,
			fmt.Sprintf("%d/%d", meta.Success, meta.Total),
			humanize.Bytes(uint64(max(meta.DownloadSize, 0))),
			meta.SourceDir,
			meta.ReplacedDir,
		)
	}

	fmt.Fprintln(out, "\nUse 'originlink history show <id>' to see a run in detail.")
	fmt.Fprintln(out, "Use 'originlink history diff <from-id> <to-id>' to compare two runs.")
	return nil
}

// showRun prints the summary of one run, optionally with its references.
func showRun(ctx context.Context, db *database.HistoryDB, out io.Writer, id int64, withRefs, jsonOut bool) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}

	if jsonOut {
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion())).Write(run)
		return err
	}

	if _, err := report.NewSimpleWriter(out, report.WithVerbose(true)).Write(run); err != nil {
		return err
	}
	if !withRefs {
		return nil
	}

	refs, err := db.GetRunReferences(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nREFERENCES (%d)\n", len(refs))
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, ref := range refs {
		status := string(ref.Status)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(out, "  [%s] %s\n", status, ref.SourceFile)
		fmt.Fprintf(out, "      %s\n      -> %s\n", ref.OriginalURL, ref.RewrittenValue)
	}
	return nil
}

// diffRuns prints the download differences between two runs, including
// assets whose content changed upstream.
func diffRuns(ctx context.Context, db *database.HistoryDB, out io.Writer, from, to int64, jsonOut bool) error {
	diff, err := db.DiffRuns(ctx, from, to)
	if err != nil {
		return err
	}

	if jsonOut {
		return writeJSON(out, diff)
	}

	fmt.Fprintf(out, "Run Comparison: #%d -> #%d\n", diff.From, diff.To)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	if diff.Empty() {
		fmt.Fprintln(out, "\nNo differences: both runs downloaded the same assets with the same results.")
		return nil
	}

	if len(diff.Added) > 0 {
		fmt.Fprintf(out, "\nAdded (%d):\n", len(diff.Added))
		for _, u := range diff.Added {
			successColor.Fprintf(out, "  [+] %s\n", u) //nolint:errcheck // terminal output
		}
	}

	if len(diff.Removed) > 0 {
		fmt.Fprintf(out, "\nRemoved (%d):\n", len(diff.Removed))
		for _, u := range diff.Removed {
			errorColor.Fprintf(out, "  [-] %s\n", u) //nolint:errcheck // terminal output
		}
	}

	if len(diff.Changed) > 0 {
		fmt.Fprintf(out, "\nChanged (%d):\n", len(diff.Changed))
		for _, c := range diff.Changed {
			warnColor.Fprintf(out, "  [~] %s: %s -> %s\n", c.URL, c.Before, c.After) //nolint:errcheck // terminal output
		}
	}

	if len(diff.Updated) > 0 {
		fmt.Fprintf(out, "\nContent changed (%d):\n", len(diff.Updated))
		for _, u := range diff.Updated {
			warnColor.Fprintf(out, "  [*] %s\n", u) //nolint:errcheck // terminal output
		}
	}

	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
