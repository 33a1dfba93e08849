package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides lets operators inject secrets and deploy-time switches without
// touching the YAML file. A variable only wins when it is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.BotName, "BOT_NAME")
	setStr(&cfg.Server.Addr, "HTTP_ADDR")
	setStr(&cfg.Log.Level, "LOG_LEVEL")
	setStr(&cfg.Log.Format, "LOG_FORMAT")

	setStr(&cfg.Bybit.APIKey, "BYBIT_API_KEY")
	setStr(&cfg.Bybit.APISecret, "BYBIT_API_SECRET")
	setBool(&cfg.Bybit.Testnet, "BYBIT_TESTNET")

	setStr(&cfg.Advisory.APIKey, "DEEPSEEK_API_KEY")
	setStr(&cfg.Advisory.BaseURL, "DEEPSEEK_BASE_URL")
	setStr(&cfg.Advisory.Model, "DEEPSEEK_MODEL")

	setStr(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setList(&cfg.Telegram.ChatIDs, "TELEGRAM_CHAT_IDS")

	setStr(&cfg.FCM.CredentialsFile, "FIREBASE_CREDENTIALS_FILE")
	setStr(&cfg.FCM.CredentialsJSON, "FIREBASE_CREDENTIALS_JSON")

	setList(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")

	setBool(&cfg.Trading.AutoTrade, "AUTO_TRADE_ENABLED")
	setList(&cfg.Trading.Symbols, "TRADING_SYMBOLS")
	setFloat(&cfg.Trading.Capital, "AUTO_CAPITAL")
	setInt(&cfg.Trading.MaxActivePositions, "AUTO_MAX_ACTIVE_POSITIONS")
	setDuration(&cfg.Trading.Cooldown, "AUTO_COOLDOWN")
	setFloat(&cfg.Risk.MaxRiskPerTrade, "AUTO_RISK_PER_TRADE")
	setFloat(&cfg.Risk.MaxDailyLoss, "AUTO_MAX_DAILY_LOSS")
	setInt(&cfg.Risk.MaxLeverage, "AUTO_MAX_LEVERAGE")
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	if v, ok := lookup(key); ok {
		*dst = splitList(v)
	}
}
