package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// chdir switches the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

// ==================== Load ====================

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.BotName != "main" || cfg.Server.Addr != ":8080" {
		t.Errorf("Unexpected defaults %+v / %+v", cfg.BotName, cfg.Server)
	}
	if cfg.Risk.MaxRiskPerTrade != 0.02 || cfg.Risk.MaxLeverage != 10 || cfg.Risk.MinRewardRatio != 1.5 {
		t.Errorf("Expected stock risk parameters, got %+v", cfg.Risk)
	}
	if cfg.Trading.MaxActivePositions != 3 || cfg.Trading.Cooldown != 4*time.Hour {
		t.Errorf("Unexpected trading defaults %+v", cfg.Trading)
	}
	if cfg.Retention.MarketHistory != 90*24*time.Hour || cfg.Retention.KeepAdvisory != 1000 {
		t.Errorf("Unexpected retention %+v", cfg.Retention)
	}
	if cfg.Intervals.MonitorReport != 5*time.Minute || cfg.Intervals.Housekeeping != 24*time.Hour {
		t.Errorf("Unexpected intervals %+v", cfg.Intervals)
	}
	if cfg.Database.Pool.MaxConns != 10 || cfg.Redis.Prefix != "autotrader" {
		t.Errorf("Unexpected store defaults %+v / %+v", cfg.Database.Pool, cfg.Redis)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeConfig(t, `
bot_name: scalper
trading:
  auto_trade: true
  symbols: [BTCUSDT, ETHUSDT]
  max_active_positions: 5
risk:
  max_leverage: 5
telegram:
  bot_token: from-file
`)
	t.Setenv("BYBIT_API_KEY", "key")
	t.Setenv("BYBIT_TESTNET", "true")
	t.Setenv("TELEGRAM_CHAT_IDS", "111, 222,")
	t.Setenv("AUTO_RISK_PER_TRADE", "0.01")
	t.Setenv("AUTO_MAX_ACTIVE_POSITIONS", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := []struct {
		name string
		ok   bool
	}{
		{"bot name from file", cfg.BotName == "scalper"},
		{"symbols from file", len(cfg.Trading.Symbols) == 2},
		{"leverage from file", cfg.Risk.MaxLeverage == 5},
		{"defaults kept beside file values", cfg.Risk.MinRewardRatio == 1.5},
		{"api key from env", cfg.Bybit.APIKey == "key" && cfg.Bybit.Testnet},
		{"chat ids split", len(cfg.Telegram.ChatIDs) == 2 && cfg.Telegram.ChatIDs[1] == "222"},
		{"telegram enabled", cfg.Telegram.Enabled()},
		{"risk per trade from env", cfg.Risk.MaxRiskPerTrade == 0.01},
		{"env beats file", cfg.Trading.MaxActivePositions == 2},
		{"kafka brokers", cfg.Kafka.Enabled() && len(cfg.Kafka.Brokers) == 2},
	}
	for _, tt := range tests {
		if !tt.ok {
			t.Errorf("%s: check failed", tt.name)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an explicit missing file to fail")
	}

	bad := writeConfig(t, "risk:\n  max_leverage: 500\n")
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "MaxLeverage") {
		t.Errorf("Expected a leverage validation error, got %v", err)
	}

	stops := writeConfig(t, "risk:\n  min_stop_distance: 0.04\n  max_stop_distance: 0.03\n")
	if _, err := Load(stops); err == nil {
		t.Error("Expected inverted stop distances to fail")
	}

	broken := writeConfig(t, "bot_name: [unclosed\n")
	if _, err := Load(broken); err == nil {
		t.Error("Expected a YAML parse error")
	}
}

// ==================== Mapping ====================

func TestEngineMapping(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	cfg.BotName = "alpha"
	cfg.Trading.Capital = 250
	cfg.Trading.Symbols = []string{"BTCUSDT"}

	ec := cfg.Engine()
	if ec.Orchestrator.BotName != "alpha" || ec.Orchestrator.Capital != 250 || ec.Analyzer.Capital != 250 {
		t.Errorf("Unexpected orchestrator mapping %+v", ec.Orchestrator)
	}
	if len(ec.Analyzer.Symbols) != 1 || ec.Analyzer.Interval != "60" {
		t.Errorf("Unexpected analyzer mapping %+v", ec.Analyzer)
	}
	if ec.AdvisoryTimeout != 25*time.Second || ec.Cooldown != 4*time.Hour {
		t.Errorf("Unexpected timeouts %v / %v", ec.AdvisoryTimeout, ec.Cooldown)
	}

	iv := cfg.SchedulerIntervals()
	if iv.PositionPoll != 30*time.Second || iv.DataCollection != time.Minute {
		t.Errorf("Unexpected intervals %+v", iv)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Expected [a b c], got %v", got)
	}
	if splitList("") != nil {
		t.Error("Expected nil for an empty value")
	}
}
