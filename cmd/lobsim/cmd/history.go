package cmd

import (
	"fmt"

	"github.com/XuAnn175/Simulator/journal"
	"github.com/XuAnn175/Simulator/pkg/id"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query runs stored in a SQLite history database",
	Long: `Query replays recorded with --history sqlite.

Subcommands:
  runs  - List every stored run
  show  - Print the Org summary of one run
  rows  - Print the account history of one run as CSV

Examples:
  lobsim history runs --db runs.sqlite
  lobsim history show 01J8Z3Q9W4M2T6X5B7C1D0E9FA
  lobsim history rows 01J8Z3Q9W4M2T6X5B7C1D0E9FA --account test`,
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryRuns,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the summary of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyRowsCmd = &cobra.Command{
	Use:   "rows <run-id>",
	Short: "Print the account history of a run as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRows,
}

var (
	historyDBPath  string
	historyAccount string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRowsCmd)

	historyCmd.PersistentFlags().StringVarP(&historyDBPath, "db", "d", "./lobsim.sqlite", "path to SQLite history DB")
	historyRowsCmd.Flags().StringVarP(&historyAccount, "account", "a", "", "only rows of this account")
}

func openHistory() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(historyDBPath, "")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runHistoryRuns(cmd *cobra.Command, args []string) error {
	j, err := openHistory()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns()
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	fmt.Fprintf(out, "%-26s  %-19s  %-10s  %7s  %6s  %s\n", "RUN_ID", "STARTED", "STRATEGY", "EVENTS", "FILLS", "DATASET")
	for _, r := range runs {
		started := "-"
		if t, err := id.Time(r.RunID); err == nil {
			started = t.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%-26s  %-19s  %-10s  %7d  %6d  %s\n", r.RunID, started, r.Strategy, r.Events, r.Fills, r.Dataset)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	j, err := openHistory()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	org, err := run.Org()
	if err != nil {
		return fmt.Errorf("render run: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), org)
	return nil
}

func runHistoryRows(cmd *cobra.Command, args []string) error {
	j, err := openHistory()
	if err != nil {
		return err
	}
	defer j.Close()

	rows, err := j.ListRows(args[0], historyAccount)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}

	w, err := journal.NewCSVWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.RecordRow(r); err != nil {
			return err
		}
	}
	return w.Close()
}
