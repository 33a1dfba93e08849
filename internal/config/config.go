package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/infrastructure/advisory"
	"perp-autotrader/internal/infrastructure/db"
	"perp-autotrader/internal/infrastructure/fcm"
	"perp-autotrader/internal/infrastructure/logger"
	"perp-autotrader/internal/infrastructure/notify"
	"perp-autotrader/internal/infrastructure/redisclient"
	"perp-autotrader/internal/usecase"
)

// DefaultPath is read when no path is given. A missing default file is not an error.
const DefaultPath = "config.yaml"

type Config struct {
	BotName   string                 `yaml:"bot_name" default:"main" validate:"required"`
	Server    ServerConfig           `yaml:"server"`
	Log       logger.Config          `yaml:"log"`
	Bybit     BybitConfig            `yaml:"bybit"`
	Advisory  advisory.Config        `yaml:"advisory"`
	Telegram  TelegramConfig         `yaml:"telegram"`
	FCM       fcm.Config             `yaml:"fcm"`
	Kafka     notify.KafkaConfig     `yaml:"kafka"`
	Database  DatabaseConfig         `yaml:"database"`
	Redis     redisclient.Config     `yaml:"redis"`
	Trading   TradingConfig          `yaml:"trading"`
	Risk      domain.RiskParameters  `yaml:"risk"`
	Intervals IntervalsConfig        `yaml:"intervals"`
	Retention domain.RetentionPolicy `yaml:"retention"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" default:":8080" validate:"required"`
	StatusInterval time.Duration `yaml:"status_interval" default:"5s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"60s"`
}

type BybitConfig struct {
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Testnet   bool          `yaml:"testnet"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout" default:"10s"`
}

type TelegramConfig struct {
	BotToken string   `yaml:"bot_token"`
	ChatIDs  []string `yaml:"chat_ids"`
}

func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && len(c.ChatIDs) > 0
}

type DatabaseConfig struct {
	URL  string        `yaml:"url"`
	Pool db.PoolConfig `yaml:"pool"`
}

type TradingConfig struct {
	AutoTrade          bool          `yaml:"auto_trade"`
	Symbols            []string      `yaml:"symbols"`
	KlineInterval      string        `yaml:"kline_interval" default:"60"`
	Capital            float64       `yaml:"capital" default:"100" validate:"gt=0"`
	DailyTarget        float64       `yaml:"daily_target" default:"7.5" validate:"gte=0"`
	MaxActivePositions int           `yaml:"max_active_positions" default:"3" validate:"gte=1,lte=20"`
	Cooldown           time.Duration `yaml:"cooldown" default:"4h"`
	CycleTimeout       time.Duration `yaml:"cycle_timeout" default:"25s"`
	RefreshDelay       time.Duration `yaml:"refresh_delay" default:"30s"`
	ScanConcurrency    int           `yaml:"scan_concurrency" default:"5" validate:"gte=1"`
}

type IntervalsConfig struct {
	PositionPoll   time.Duration `yaml:"position_poll" default:"30s"`
	MonitorReport  time.Duration `yaml:"monitor_report" default:"300s"`
	AutoTrade      time.Duration `yaml:"auto_trade" default:"30s"`
	DataCollection time.Duration `yaml:"data_collection" default:"60s"`
	Housekeeping   time.Duration `yaml:"housekeeping" default:"24h"`
}

var validate = validator.New()

// Load reads the YAML file at path on top of the struct defaults, applies .env and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Database.Pool = db.PoolConfigFromEnv(cfg.Database.Pool)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Risk.MinStopDistance >= c.Risk.MaxStopDistance {
		return fmt.Errorf("invalid config: risk.min_stop_distance must be below risk.max_stop_distance")
	}
	return nil
}

// Engine maps the file layout onto the engine's configuration.
func (c *Config) Engine() usecase.EngineConfig {
	ec := usecase.DefaultEngineConfig()
	ec.Risk = c.Risk
	ec.AutoTrade = c.Trading.AutoTrade
	ec.Cooldown = c.Trading.Cooldown
	ec.Retention = c.Retention
	if c.Advisory.Timeout > 0 {
		ec.AdvisoryTimeout = c.Advisory.Timeout
	}

	ec.Analyzer.Capital = c.Trading.Capital
	ec.Analyzer.DailyTarget = c.Trading.DailyTarget
	ec.Analyzer.Concurrency = c.Trading.ScanConcurrency
	if c.Trading.KlineInterval != "" {
		ec.Analyzer.Interval = c.Trading.KlineInterval
	}
	if len(c.Trading.Symbols) > 0 {
		ec.Analyzer.Symbols = c.Trading.Symbols
	}

	ec.Orchestrator.MaxActivePositions = c.Trading.MaxActivePositions
	ec.Orchestrator.Capital = c.Trading.Capital
	ec.Orchestrator.BotName = c.BotName
	if c.Trading.CycleTimeout > 0 {
		ec.Orchestrator.CycleTimeout = c.Trading.CycleTimeout
	}
	if c.Trading.RefreshDelay > 0 {
		ec.Orchestrator.RefreshDelay = c.Trading.RefreshDelay
	}
	return ec
}

func (c *Config) SchedulerIntervals() usecase.Intervals {
	return usecase.Intervals{
		PositionPoll:   c.Intervals.PositionPoll,
		MonitorReport:  c.Intervals.MonitorReport,
		AutoTrade:      c.Intervals.AutoTrade,
		DataCollection: c.Intervals.DataCollection,
		Housekeeping:   c.Intervals.Housekeeping,
	}
}

// splitList parses a comma separated env value.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
