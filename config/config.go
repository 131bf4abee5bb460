package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents a complete replay run
type Config struct {
	Run      RunConfig       `json:"run" yaml:"run"`
	Exchange ExchangeConfig  `json:"exchange" yaml:"exchange"`
	Accounts []AccountConfig `json:"accounts" yaml:"accounts" validate:"dive"`
	Strategy StrategyConfig  `json:"strategy" yaml:"strategy"`
	History  HistoryConfig   `json:"history" yaml:"history"`
	Log      LogConfig       `json:"log" yaml:"log"`
}

// RunConfig names the feed files and the replay window
type RunConfig struct {
	Dataset      string   `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	TradesFile   string   `json:"trades_file" yaml:"trades_file" validate:"required"`
	DepthFile    string   `json:"depth_file,omitempty" yaml:"depth_file,omitempty"`
	Symbols      []string `json:"symbols,omitempty" yaml:"symbols,omitempty" validate:"dive,required"`
	MaxDepth     int      `json:"max_depth" yaml:"max_depth" validate:"gte=1"`
	TickInterval string   `json:"tick_interval" yaml:"tick_interval"` // e.g. "10ms"
	Limit        int      `json:"limit,omitempty" yaml:"limit,omitempty" validate:"gte=0"`
	StartMS      int64    `json:"start_ms,omitempty" yaml:"start_ms,omitempty" validate:"gte=0"`
	EndMS        int64    `json:"end_ms,omitempty" yaml:"end_ms,omitempty" validate:"gte=0"`
}

// ParseTickInterval converts the tick interval string to time.Duration
func (r RunConfig) ParseTickInterval() (time.Duration, error) {
	if r.TickInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(r.TickInterval)
}

// ExchangeConfig contains matching parameters
type ExchangeConfig struct {
	Impact string `json:"impact,omitempty" yaml:"impact,omitempty" validate:"omitempty,oneof=none depth"`
	Strict bool   `json:"strict,omitempty" yaml:"strict,omitempty"`
}

type AccountConfig struct {
	Name    string  `json:"name" yaml:"name" validate:"required"`
	Balance float64 `json:"balance" yaml:"balance" validate:"gte=0"`
}

// StrategyConfig selects the strategy driven on each tick
type StrategyConfig struct {
	Name    string     `json:"name" yaml:"name" validate:"omitempty,oneof=noop open-once grid"`
	Account string     `json:"account,omitempty" yaml:"account,omitempty"`
	Symbol  string     `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Units   float64    `json:"units,omitempty" yaml:"units,omitempty"` // open-once; negative sells
	Grid    GridConfig `json:"grid,omitempty" yaml:"grid,omitempty"`
}

type GridConfig struct {
	Low        float64 `json:"low" yaml:"low" validate:"gte=0"`
	High       float64 `json:"high" yaml:"high" validate:"gte=0"`
	Step       float64 `json:"step" yaml:"step" validate:"gte=0"`
	Profit     float64 `json:"profit" yaml:"profit" validate:"gte=0"`
	Amount     float64 `json:"amount" yaml:"amount" validate:"gte=0"`
	MinBalance float64 `json:"min_balance" yaml:"min_balance"`
}

// HistoryConfig contains history export parameters
type HistoryConfig struct {
	Type    string `json:"type" yaml:"type" validate:"oneof=csv sqlite none"`
	CSVPath string `json:"csv_path,omitempty" yaml:"csv_path,omitempty"`
	DBPath  string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	OrgPath string `json:"org_path,omitempty" yaml:"org_path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

var (
	validate     *validator.Validate
	onceValidate sync.Once
)

func getValidator() *validator.Validate {
	onceValidate.Do(func() {
		validate = validator.New()
		// report fields by their yaml names, e.g. run.trades_file
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// and applies LOBSIM_* environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are skipped; existing variables are never overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from LOBSIM_* environment variables.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"LOBSIM_DATASET":       &c.Run.Dataset,
		"LOBSIM_TRADES_FILE":   &c.Run.TradesFile,
		"LOBSIM_DEPTH_FILE":    &c.Run.DepthFile,
		"LOBSIM_TICK_INTERVAL": &c.Run.TickInterval,
		"LOBSIM_IMPACT":        &c.Exchange.Impact,
		"LOBSIM_STRATEGY":      &c.Strategy.Name,
		"LOBSIM_HISTORY_TYPE":  &c.History.Type,
		"LOBSIM_HISTORY_CSV":   &c.History.CSVPath,
		"LOBSIM_HISTORY_DB":    &c.History.DBPath,
		"LOBSIM_LOG_LEVEL":     &c.Log.Level,
		"LOBSIM_LOG_FORMAT":    &c.Log.Format,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("LOBSIM_SYMBOLS"); ok {
		c.Run.Symbols = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Run.Symbols = append(c.Run.Symbols, s)
			}
		}
	}
	if v, ok := os.LookupEnv("LOBSIM_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOBSIM_LIMIT: %w", err)
		}
		c.Run.Limit = n
	}
	if v, ok := os.LookupEnv("LOBSIM_STRICT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOBSIM_STRICT: %w", err)
		}
		c.Exchange.Strict = b
	}
	return nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if _, err := c.Run.ParseTickInterval(); err != nil {
		return fmt.Errorf("run.tick_interval: %w", err)
	}
	if c.Run.DepthFile == "" && len(c.Run.Symbols) == 0 {
		return fmt.Errorf("run.symbols is required when run.depth_file is empty")
	}
	if c.Run.EndMS > 0 && c.Run.EndMS <= c.Run.StartMS {
		return fmt.Errorf("run.end_ms must be greater than run.start_ms")
	}

	seen := map[string]bool{}
	for _, a := range c.Accounts {
		if seen[a.Name] {
			return fmt.Errorf("duplicate account %q", a.Name)
		}
		seen[a.Name] = true
	}

	if c.Strategy.Name != "" && c.Strategy.Name != "noop" {
		if c.Strategy.Account == "" {
			return fmt.Errorf("strategy.account is required")
		}
		if !seen[c.Strategy.Account] {
			return fmt.Errorf("strategy.account %q is not in accounts", c.Strategy.Account)
		}
		if c.Strategy.Symbol == "" {
			return fmt.Errorf("strategy.symbol is required")
		}
	}
	if c.Strategy.Name == "open-once" && c.Strategy.Units == 0 {
		return fmt.Errorf("strategy.units must be non-zero for open-once")
	}
	if c.Strategy.Name == "grid" {
		g := c.Strategy.Grid
		if g.Step <= 0 {
			return fmt.Errorf("strategy.grid.step must be positive")
		}
		if g.Amount <= 0 {
			return fmt.Errorf("strategy.grid.amount must be positive")
		}
		if g.High <= g.Low {
			return fmt.Errorf("strategy.grid.high must be greater than strategy.grid.low")
		}
	}

	if c.History.Type == "csv" && c.History.CSVPath == "" {
		return fmt.Errorf("history csv_path required for CSV type")
	}
	if c.History.Type == "sqlite" && c.History.DBPath == "" {
		return fmt.Errorf("history db_path required for SQLite type")
	}
	return nil
}

// fieldError renders one validator failure in the same style as the
// hand-written checks above.
func fieldError(e validator.FieldError) error {
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", field, e.Param())
	case "gte":
		return fmt.Errorf("%s must be >= %s", field, e.Param())
	default:
		return fmt.Errorf("%s failed on tag '%s'", field, e.Tag())
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Dataset:      "BTCUSDT 2024-11-27",
			TradesFile:   "./data/BTCUSDT2024-11-27.csv",
			DepthFile:    "./data/2024-11-27_BTCUSDT_ob500.data",
			MaxDepth:     5,
			TickInterval: "10ms",
		},
		Exchange: ExchangeConfig{
			Impact: "none",
		},
		Accounts: []AccountConfig{
			{Name: "test", Balance: 1000000},
		},
		Strategy: StrategyConfig{
			Name:    "grid",
			Account: "test",
			Symbol:  "BTCUSDT",
			Grid: GridConfig{
				Low:        91000,
				High:       93000,
				Step:       10,
				Profit:     10,
				Amount:     0.1,
				MinBalance: 200,
			},
		},
		History: HistoryConfig{
			Type:    "csv",
			CSVPath: "./account_history.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
