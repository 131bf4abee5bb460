package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/XuAnn175/Simulator/backtest"
	"github.com/XuAnn175/Simulator/book"
	"github.com/XuAnn175/Simulator/config"
	"github.com/XuAnn175/Simulator/exchange"
	"github.com/XuAnn175/Simulator/feed"
	"github.com/XuAnn175/Simulator/journal"
	"github.com/XuAnn175/Simulator/pkg/id"
	"github.com/XuAnn175/Simulator/strategies"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runLog = logrus.WithField("component", "cli")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a dataset from a config file",
	Long: `Replay recorded trades (and optionally depth) through the simulated
exchange and drive the configured strategy.

Without -f the built-in defaults are used. LOBSIM_* environment variables
are applied on top of the file, and flags on top of both.

Example:
  lobsim run -f replay.yaml --limit 200000 --history sqlite --db runs.sqlite`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runConfigPath string
	runTrades     string
	runDepth      string
	runLimit      int
	runStrategy   string
	runImpact     string
	runTick       string
	runHistory    string
	runCSVPath    string
	runDBPath     string
	runOrgPath    string
)

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runConfigPath, "file", "f", "", "path to config file (YAML or JSON)")
	f.StringVar(&runTrades, "trades", "", "trade CSV file")
	f.StringVar(&runDepth, "depth", "", "depth JSONL file")
	f.IntVar(&runLimit, "limit", 0, "read at most this many trade rows")
	f.StringVar(&runStrategy, "strategy", "", "strategy: noop, open-once or grid")
	f.StringVar(&runImpact, "impact", "", "synthetic order impact: none or depth")
	f.StringVar(&runTick, "tick", "", "minimum gap between strategy ticks, e.g. 10ms")
	f.StringVar(&runHistory, "history", "", "history export: csv, sqlite or none")
	f.StringVar(&runCSVPath, "csv", "", "CSV history path")
	f.StringVar(&runDBPath, "db", "", "SQLite history path")
	f.StringVar(&runOrgPath, "org", "", "write an Org-mode run summary to this path")
}

func runRun(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if runConfigPath != "" {
		cfg, err = config.LoadFromFile(runConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("trades", &cfg.Run.TradesFile, runTrades)
	set("depth", &cfg.Run.DepthFile, runDepth)
	set("strategy", &cfg.Strategy.Name, runStrategy)
	set("impact", &cfg.Exchange.Impact, runImpact)
	set("tick", &cfg.Run.TickInterval, runTick)
	set("history", &cfg.History.Type, runHistory)
	set("csv", &cfg.History.CSVPath, runCSVPath)
	set("db", &cfg.History.DBPath, runDBPath)
	set("org", &cfg.History.OrgPath, runOrgPath)
	if flags.Changed("limit") {
		cfg.Run.Limit = runLimit
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// flags win over the config file
	if logLevel == "" && logFormat == "" {
		if err := setupLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	_, err = replay(ctx, cfg, cmd.OutOrStdout())
	return err
}

// replay runs one configured replay end to end and reports it to out.
func replay(ctx context.Context, cfg *config.Config, out io.Writer) (journal.Run, error) {
	from, to := window(cfg.Run)
	symbol := ""
	if len(cfg.Run.Symbols) > 0 {
		symbol = cfg.Run.Symbols[0]
	}

	trades, err := feed.OpenTrades(cfg.Run.TradesFile, feed.TradeOptions{
		Symbol: symbol,
		Limit:  cfg.Run.Limit,
		From:   from,
		To:     to,
	})
	if err != nil {
		return journal.Run{}, fmt.Errorf("open trades: %w", err)
	}

	var depth feed.DepthSource
	var seeds []book.Seed
	if cfg.Run.DepthFile != "" {
		dr, err := feed.OpenDepth(cfg.Run.DepthFile, symbol)
		if err != nil {
			trades.Close()
			return journal.Run{}, fmt.Errorf("open depth: %w", err)
		}
		ds := feed.NewDepthStream(dr, from, to)
		seeds, err = ds.Prime()
		if err != nil {
			trades.Close()
			ds.Close()
			return journal.Run{}, fmt.Errorf("prime depth: %w", err)
		}
		depth = ds
	}
	seeds = selectSeeds(seeds, cfg.Run.Symbols)

	events := feed.Merge(trades, depth)

	ex, err := newExchange(cfg, seeds)
	if err != nil {
		events.Close()
		return journal.Run{}, err
	}
	strat, err := strategies.StrategyByName(cfg.Strategy)
	if err != nil {
		events.Close()
		return journal.Run{}, err
	}
	interval, _ := cfg.Run.ParseTickInterval()

	runner := &backtest.Runner{
		Exchange: ex,
		Feed:     events,
		Strategy: strat,
		Options:  backtest.RunnerOptions{TickInterval: interval, Progress: 100000},
	}
	res, runErr := runner.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return journal.Run{}, fmt.Errorf("replay: %w", runErr)
	}

	run, err := record(cfg, ex, res)
	if err != nil {
		return run, err
	}
	backtest.PrintRun(out, run, res)
	return run, runErr
}

func window(r config.RunConfig) (from, to time.Time) {
	if r.StartMS > 0 {
		from = time.UnixMilli(r.StartMS).UTC()
	}
	if r.EndMS > 0 {
		to = time.UnixMilli(r.EndMS).UTC()
	}
	return from, to
}

// selectSeeds keeps the seeds of symbols, in that order, adding empty
// books for symbols the depth file does not cover. No symbols keeps all.
func selectSeeds(seeds []book.Seed, symbols []string) []book.Seed {
	if len(symbols) == 0 {
		return seeds
	}
	out := make([]book.Seed, 0, len(symbols))
	for _, s := range symbols {
		i := slices.IndexFunc(seeds, func(x book.Seed) bool { return x.Symbol == s })
		if i < 0 {
			runLog.Warnf("no depth snapshot for %s, starting from an empty book", s)
			out = append(out, book.Seed{Symbol: s})
			continue
		}
		out = append(out, seeds[i])
	}
	return out
}

func newExchange(cfg *config.Config, seeds []book.Seed) (*exchange.Exchange, error) {
	impact, err := book.ParseImpact(cfg.Exchange.Impact)
	if err != nil {
		return nil, err
	}
	ex, err := exchange.New(seeds,
		exchange.WithMaxDepth(cfg.Run.MaxDepth),
		exchange.WithImpact(impact),
		exchange.WithStrict(cfg.Exchange.Strict),
	)
	if err != nil {
		return nil, fmt.Errorf("create exchange: %w", err)
	}
	for _, a := range cfg.Accounts {
		if err := ex.AddAccount(a.Name, decimal.NewFromFloat(a.Balance)); err != nil {
			return nil, err
		}
	}
	return ex, nil
}

// record flushes the account history to the configured sinks and builds
// the run summary.
func record(cfg *config.Config, ex *exchange.Exchange, res backtest.Result) (journal.Run, error) {
	runID := id.New()

	var j journal.Journal
	var db *journal.SQLite
	var err error
	switch cfg.History.Type {
	case "csv":
		j, err = journal.NewCSV(cfg.History.CSVPath)
	case "sqlite":
		db, err = journal.NewSQLite(cfg.History.DBPath, runID)
		j = db
	}
	if err != nil {
		return journal.Run{}, fmt.Errorf("create history: %w", err)
	}

	digest, err := backtest.Export(ex, j)
	if err != nil {
		if j != nil {
			j.Close()
		}
		return journal.Run{}, fmt.Errorf("export history: %w", err)
	}

	strategy := cfg.Strategy.Name
	if strategy == "" {
		strategy = "noop"
	}
	run := backtest.NewRun(runID, cfg.Run.Dataset, strategy, ex.Symbols(), res, digest)

	if db != nil {
		if err := db.RecordRun(run); err != nil {
			db.Close()
			return run, fmt.Errorf("record run: %w", err)
		}
	}
	if j != nil {
		if err := j.Close(); err != nil {
			return run, fmt.Errorf("close history: %w", err)
		}
	}
	if cfg.History.OrgPath != "" {
		if err := run.WriteOrg(cfg.History.OrgPath); err != nil {
			return run, fmt.Errorf("write org: %w", err)
		}
	}
	return run, nil
}
