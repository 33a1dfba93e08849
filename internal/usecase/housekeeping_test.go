package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

func TestHousekeeperCollect(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT", "BBBUSDT", "CCCUSDT")
	delete(rig.ex.tickers, "CCCUSDT")
	cache := newFakeCache()

	h := NewHousekeeper(rig.analyzer, rig.audit, cache, domain.DefaultRetentionPolicy(), nil, zerolog.Nop())
	collected, failed, err := h.Collect(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if collected != 2 || failed != 1 {
		t.Errorf("Expected 2 collected and 1 failed, got %d/%d", collected, failed)
	}
	if len(cache.entries) != 2 {
		t.Errorf("Expected 2 cached analyses, got %d", len(cache.entries))
	}
	if len(rig.audit.snapshots) != 2 {
		t.Errorf("Expected 2 snapshots, got %d", len(rig.audit.snapshots))
	}
	if len(rig.audit.apiErrors) != 1 || rig.audit.apiErrors[0] != "data_collection:CCCUSDT" {
		t.Errorf("Expected data_collection:CCCUSDT error, got %v", rig.audit.apiErrors)
	}

	// the analyzer now reads through the cache
	rig.analyzer.WithCache(cache)
	delete(rig.ex.tickers, "AAAUSDT")
	if _, err := rig.analyzer.Cached(context.Background(), "AAAUSDT"); err != nil {
		t.Errorf("Expected cached analysis, got %v", err)
	}
}

func TestHousekeeperWithoutStores(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	h := NewHousekeeper(rig.analyzer, nil, nil, domain.DefaultRetentionPolicy(), nil, zerolog.Nop())

	collected, failed, err := h.Collect(context.Background())
	if err != nil || collected != 0 || failed != 0 {
		t.Errorf("Expected a no-op, got %d/%d/%v", collected, failed, err)
	}
	stats, err := h.Rotate(context.Background())
	if err != nil || stats != (domain.RotationStats{}) {
		t.Errorf("Expected empty rotation, got %+v/%v", stats, err)
	}
}

func TestHousekeeperRotate(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	h := NewHousekeeper(rig.analyzer, rig.audit, nil, domain.DefaultRetentionPolicy(), nil, zerolog.Nop())

	stats, err := h.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stats.MarketHistory != 3 {
		t.Errorf("Expected 3 market history rows removed, got %d", stats.MarketHistory)
	}
}
