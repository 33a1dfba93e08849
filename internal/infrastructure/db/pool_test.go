package db

import (
	"testing"
	"time"
)

func TestWithSSLMode(t *testing.T) {
	tests := []struct {
		name, url, mode, expected string
	}{
		{"adds mode", "postgres://u:p@host:5432/db", "require", "postgres://u:p@host:5432/db?sslmode=require"},
		{"keeps explicit mode", "postgres://u:p@host/db?sslmode=disable", "require", "postgres://u:p@host/db?sslmode=disable"},
		{"empty mode", "postgres://u:p@host/db", "", "postgres://u:p@host/db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withSSLMode(tt.url, tt.mode); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestPoolConfigFromEnv(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MIN_CONNS", "9")
	t.Setenv("DB_MAX_CONN_IDLE_TIME", "1m")

	cfg := PoolConfigFromEnv(DefaultPoolConfig())
	if cfg.MaxConns != 4 {
		t.Errorf("Expected max 4, got %d", cfg.MaxConns)
	}
	if cfg.MinConns != 4 {
		t.Errorf("Expected min clamped to 4, got %d", cfg.MinConns)
	}
	if cfg.MaxConnIdleTime != time.Minute {
		t.Errorf("Expected 1m idle, got %v", cfg.MaxConnIdleTime)
	}
}
