package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/XuAnn175/Simulator/journal"
)

const stamp = "2006-01-02 15:04:05.000"

// NewRun fills a run record from a finished replay.
func NewRun(runID, dataset, strategy string, symbols []string, res Result, digest string) journal.Run {
	return journal.Run{
		RunID:    runID,
		Created:  time.Now().UTC(),
		Dataset:  dataset,
		Strategy: strategy,
		Symbols:  symbols,
		Start:    res.Start,
		End:      res.End,
		Events:   res.Events,
		Fills:    res.Fills,
		Digest:   digest,
		Accounts: res.Accounts,
	}
}

func PrintRun(w io.Writer, r journal.Run, res Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Replay Result")
	fmt.Fprintln(w, "==================================================")

	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbols:       %v\n", r.Symbols)
	fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	if !res.Start.IsZero() {
		fmt.Fprintf(w, "Start:         %s\n", res.Start.UTC().Format(stamp))
		fmt.Fprintf(w, "End:           %s\n", res.End.UTC().Format(stamp))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Replay Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Events:        %d\n", res.Events)
	fmt.Fprintf(w, "Trades:        %d\n", res.Trades)
	fmt.Fprintf(w, "Depth updates: %d\n", res.Deltas)
	fmt.Fprintf(w, "Ticks:         %d\n", res.Ticks)
	fmt.Fprintf(w, "Fills:         %d\n", res.Fills)
	if res.Skipped > 0 {
		fmt.Fprintf(w, "Skipped:       %d\n", res.Skipped)
	}

	for _, a := range r.Accounts {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Account %s\n", a.Name)
		fmt.Fprintln(w, "--------------------------------------------------")
		fmt.Fprintf(w, "Start Balance: %s\n", a.StartBalance.StringFixed(2))
		fmt.Fprintf(w, "End Balance:   %s\n", a.EndBalance.StringFixed(2))
		fmt.Fprintf(w, "Net P/L:       %s\n", a.NetPL().StringFixed(2))
	}

	if r.Digest != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Digest:        %s\n", r.Digest)
	}
	fmt.Fprintln(w)
}
