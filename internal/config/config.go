package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"crab-rebase-sim/internal/trigger"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	RPC        RPCConfig        `yaml:"rpc"`
	Quotes     QuotesConfig     `yaml:"quotes"`
	Simulation SimulationConfig `yaml:"simulation"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Output     OutputConfig     `yaml:"output"`
	State      StateConfig      `yaml:"state"`
	Timescale  TimescaleConfig  `yaml:"timescale"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type RPCConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type QuotesConfig struct {
	Cache string      `yaml:"cache"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type SimulationConfig struct {
	StartBlock      uint64        `yaml:"start_block"`
	EndBlock        uint64        `yaml:"end_block"`
	InitialETH      float64       `yaml:"initial_eth"`
	RandomStart     bool          `yaml:"random_start"`
	RandomMaxBlock  uint64        `yaml:"random_max_block"`
	Seed            int64         `yaml:"seed"`
	Loop            bool          `yaml:"loop"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxStepFailures int           `yaml:"max_step_failures"`
	ProgressEvery   uint64        `yaml:"progress_every"`
	Resume          bool          `yaml:"resume"`
}

type StrategyConfig struct {
	Name                string  `yaml:"name"`
	DeltaHedgeThreshold float64 `yaml:"delta_hedge_threshold"`
	Trigger             string  `yaml:"trigger"`
	IncludeInterest     bool    `yaml:"include_interest"`
	CheckValue          bool    `yaml:"check_value"`
}

type OutputConfig struct {
	Dir        string `yaml:"dir"`
	CSV        *bool  `yaml:"csv"`
	JournalDir string `yaml:"journal_dir"`
}

func (o OutputConfig) CSVEnabled() bool {
	return o.CSV == nil || *o.CSV
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueueSize       int           `yaml:"queue_size"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

const (
	DefaultStartBlock     = 14011134
	DefaultRandomMaxBlock = 14270000
	DefaultThreshold      = 0.03
	DefaultTrigger        = "TwapCollateral175235"
)

// DefaultStrategies are the four interest/value-check combinations of the
// TWAP 1.75-2.35 strategy.
func DefaultStrategies() []StrategyConfig {
	return []StrategyConfig{
		{Name: "crab_nointerest_no_value_check", DeltaHedgeThreshold: DefaultThreshold, Trigger: DefaultTrigger},
		{Name: "crab_nointerest", DeltaHedgeThreshold: DefaultThreshold, Trigger: DefaultTrigger, CheckValue: true},
		{Name: "crab_no_value_check", DeltaHedgeThreshold: DefaultThreshold, Trigger: DefaultTrigger, IncludeInterest: true},
		{Name: "crab", DeltaHedgeThreshold: DefaultThreshold, Trigger: DefaultTrigger, IncludeInterest: true, CheckValue: true},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = 15 * time.Second
	}
	if cfg.Quotes.Cache == "" {
		cfg.Quotes.Cache = CacheMemory
	}
	if cfg.Quotes.Redis.Prefix == "" {
		cfg.Quotes.Redis.Prefix = "crabsim:"
	}
	if cfg.Simulation.StartBlock == 0 {
		cfg.Simulation.StartBlock = DefaultStartBlock
	}
	if cfg.Simulation.InitialETH == 0 {
		cfg.Simulation.InitialETH = 100
	}
	if cfg.Simulation.RandomMaxBlock == 0 {
		cfg.Simulation.RandomMaxBlock = DefaultRandomMaxBlock
	}
	if cfg.Simulation.PollInterval == 0 {
		cfg.Simulation.PollInterval = 12 * time.Second
	}
	if cfg.Simulation.MaxStepFailures == 0 {
		cfg.Simulation.MaxStepFailures = 5
	}
	if cfg.Simulation.ProgressEvery == 0 {
		cfg.Simulation.ProgressEvery = 1000
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	for i := range cfg.Strategies {
		if cfg.Strategies[i].DeltaHedgeThreshold == 0 {
			cfg.Strategies[i].DeltaHedgeThreshold = DefaultThreshold
		}
		if cfg.Strategies[i].Trigger == "" {
			cfg.Strategies[i].Trigger = DefaultTrigger
		}
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/crabsim.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := false
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRPCURL)); v != "" {
		cfg.RPC.URL = v
	}
	if os.Getenv(EnvRandomStart) != "" {
		cfg.Simulation.RandomStart = true
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Quotes.Redis.Addr = v
		cfg.Quotes.Cache = CacheRedis
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramChatID)); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimescaleDSN)); v != "" {
		cfg.Timescale.DSN = v
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.RPC.URL) == "" {
		return errors.New("rpc.url is required")
	}
	if cfg.RPC.RequestsPerSecond < 0 {
		return errors.New("rpc.requests_per_second must be >= 0")
	}
	switch cfg.Quotes.Cache {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if cfg.Quotes.Redis.Addr == "" {
			return errors.New("quotes.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("quotes.cache %q must be none, memory or redis", cfg.Quotes.Cache)
	}
	if cfg.Simulation.InitialETH <= 0 {
		return errors.New("simulation.initial_eth must be > 0")
	}
	if cfg.Simulation.EndBlock != 0 && cfg.Simulation.EndBlock <= cfg.Simulation.StartBlock {
		return errors.New("simulation.end_block must be after simulation.start_block")
	}
	if cfg.Simulation.RandomStart && cfg.Simulation.RandomMaxBlock <= cfg.Simulation.StartBlock {
		return errors.New("simulation.random_max_block must be after simulation.start_block")
	}
	if cfg.Simulation.RandomStart && cfg.Simulation.EndBlock != 0 && cfg.Simulation.RandomMaxBlock > cfg.Simulation.EndBlock {
		return errors.New("simulation.random_max_block must not be after simulation.end_block")
	}
	if cfg.Simulation.PollInterval < 0 {
		return errors.New("simulation.poll_interval must be >= 0")
	}
	if cfg.Simulation.MaxStepFailures < 0 {
		return errors.New("simulation.max_step_failures must be >= 0")
	}
	if len(cfg.Strategies) == 0 {
		return errors.New("at least one strategy is required")
	}
	seen := make(map[string]struct{}, len(cfg.Strategies))
	for i, s := range cfg.Strategies {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("strategy name %q is not unique", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.DeltaHedgeThreshold <= 0 || s.DeltaHedgeThreshold >= 1 {
			return fmt.Errorf("strategy %s: delta_hedge_threshold must be in (0,1)", s.Name)
		}
		if _, ok := trigger.Lookup(s.Trigger); !ok {
			return fmt.Errorf("strategy %s: unknown trigger %q (known: %s)", s.Name, s.Trigger, strings.Join(trigger.Names(), ", "))
		}
	}
	if !cfg.Output.CSVEnabled() && cfg.Output.JournalDir == "" && !cfg.Timescale.Enabled {
		return errors.New("at least one of output.csv, output.journal_dir or timescale must be enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
