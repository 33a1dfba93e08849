package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

func newTestMonitor(rig *testRig, sender *recordingSender) *Monitor {
	log := zerolog.Nop()
	return NewMonitor(MonitorDeps{
		Exchange:   rig.ex,
		Analyzer:   rig.analyzer,
		Risk:       rig.risk,
		Quarantine: rig.quarantine,
		DailyLoss:  rig.daily,
		Audit:      rig.audit,
		Notifier:   NewBroadcaster(log, nil, sender),
	}, log)
}

func eventKinds(events []domain.PositionEvent) []domain.PositionEventKind {
	out := make([]domain.PositionEventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func sameKinds(got []domain.PositionEventKind, want ...domain.PositionEventKind) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// ==================== Poll ====================

func TestMonitorEventsFireOncePerLifetime(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	sender := &recordingSender{name: "test"}
	m := newTestMonitor(rig, sender)
	ctx := context.Background()

	pos := domain.LivePosition{Symbol: "AAAUSDT", Side: "Buy", Size: 1, EntryPrice: 100, MarkPrice: 100, LiqPrice: 99, TakeProfit: 102, Leverage: 5}
	rig.ex.setPositions(pos)

	steps := []struct {
		name  string
		mark  float64
		open  bool
		kinds []domain.PositionEventKind
	}{
		{"opened close to liquidation", 100, true, []domain.PositionEventKind{domain.EventOpened, domain.EventNearLiquidation}},
		{"unchanged", 100, true, nil},
		{"target mostly reached", 101.7, true, []domain.PositionEventKind{domain.EventTargetReached}},
		{"still in profit", 101.9, true, nil},
		{"closed", 0, false, []domain.PositionEventKind{domain.EventClosed}},
		{"stays closed", 0, false, nil},
		{"reopened", 100, true, []domain.PositionEventKind{domain.EventOpened, domain.EventNearLiquidation}},
	}

	for _, step := range steps {
		if step.open {
			pos.MarkPrice = step.mark
			rig.ex.setPositions(pos)
		} else {
			rig.ex.setPositions()
		}
		events, err := m.Poll(ctx)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", step.name, err)
		}
		if got := eventKinds(events); !sameKinds(got, step.kinds...) {
			t.Errorf("%s: expected events %v, got %v", step.name, step.kinds, got)
		}
	}

	if got := len(sender.kinds()); got != 6 {
		t.Errorf("Expected 6 notifications, got %d (%v)", got, sender.kinds())
	}
}

func TestMonitorCloseBooksLoss(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	m := newTestMonitor(rig, &recordingSender{name: "test"})
	ctx := context.Background()

	rig.ex.setPositions(domain.LivePosition{Symbol: "AAAUSDT", Side: "Buy", Size: 2, EntryPrice: 100, MarkPrice: 100})
	if _, err := m.Poll(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rig.ex.setTicker("AAAUSDT", 98.5)
	rig.ex.setPositions()
	events, err := m.Poll(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(events) != 1 || events[0].Kind != domain.EventClosed {
		t.Fatalf("Expected one close event, got %v", eventKinds(events))
	}

	ev := events[0]
	if !floatEquals(ev.PnL, -3, 1e-9) {
		t.Errorf("Expected P&L -3, got %v", ev.PnL)
	}
	if !floatEquals(ev.PnLPct, -1.5, 1e-9) {
		t.Errorf("Expected P&L -1.5%%, got %v", ev.PnLPct)
	}
	if !floatEquals(rig.audit.exits["AAAUSDT"], -3, 1e-9) {
		t.Errorf("Expected audit exit -3, got %v", rig.audit.exits["AAAUSDT"])
	}
	if !floatEquals(rig.daily.Check(100, 0, nil).LossToday, 3, 1e-9) {
		t.Error("Expected the realized loss in the daily ledger")
	}
	if !rig.quarantine.InQuarantine("AAAUSDT", time.Now()) {
		t.Error("Expected quarantine armed on close")
	}
	if shadow := m.Shadow(); len(shadow) != 1 || shadow[0].Open() || shadow[0].NotifiedLiquidation {
		t.Errorf("Expected shadow entry reset, got %+v", shadow)
	}
}

func TestMonitorShortCloseProfit(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	m := newTestMonitor(rig, &recordingSender{name: "test"})
	ctx := context.Background()

	rig.ex.setPositions(domain.LivePosition{Symbol: "AAAUSDT", Side: "Sell", Size: 1, EntryPrice: 100, MarkPrice: 100})
	m.Poll(ctx)

	rig.ex.setTicker("AAAUSDT", 97)
	rig.ex.setPositions()
	events, _ := m.Poll(ctx)
	if len(events) != 1 || !floatEquals(events[0].PnL, 3, 1e-9) {
		t.Fatalf("Expected short close with P&L +3, got %+v", events)
	}
	if got := rig.daily.Check(100, 0, nil).LossToday; got != 0 {
		t.Errorf("Expected profit to leave the daily loss at 0, got %v", got)
	}
}

func TestMonitorFallbackTarget(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	m := newTestMonitor(rig, &recordingSender{name: "test"})

	rig.ex.setPositions(domain.LivePosition{Symbol: "AAAUSDT", Side: "Buy", Size: 1, EntryPrice: 100, MarkPrice: 100})
	if _, err := m.Poll(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	shadow := m.Shadow()
	if len(shadow) != 1 {
		t.Fatalf("Expected one shadow entry, got %d", len(shadow))
	}
	// 1% stop, 1.5R target
	if !floatEquals(shadow[0].TargetProfitPct, 1.5, 1e-9) {
		t.Errorf("Expected fallback target 1.5%%, got %v", shadow[0].TargetProfitPct)
	}
	if shadow[0].Side != domain.Long || shadow[0].LastSize != 1 {
		t.Errorf("Expected long size 1, got %+v", shadow[0])
	}
}

func TestMonitorIgnoresDust(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	m := newTestMonitor(rig, &recordingSender{name: "test"})

	rig.ex.setPositions(domain.LivePosition{Symbol: "AAAUSDT", Side: "Buy", Size: 0.00001, EntryPrice: 100})
	events, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected dust to be ignored, got %v", eventKinds(events))
	}
}

func TestMonitorPollError(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	m := newTestMonitor(rig, &recordingSender{name: "test"})
	rig.ex.positionsErr = errFake

	if _, err := m.Poll(context.Background()); err == nil {
		t.Error("Expected positions error to surface")
	}
}

// ==================== Report ====================

func TestMonitorReportWithoutPositions(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	sender := &recordingSender{name: "test"}
	m := newTestMonitor(rig, sender)

	text, err := m.Report(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(text, "No open positions") {
		t.Errorf("Expected idle report, got %q", text)
	}
	if kinds := sender.kinds(); len(kinds) != 1 || kinds[0] != "monitor_report" {
		t.Errorf("Expected one monitor_report notification, got %v", kinds)
	}
}

func TestMonitorReportReappliesProtection(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	m := newTestMonitor(rig, &recordingSender{name: "test"})
	rig.ex.setPositions(domain.LivePosition{Symbol: "AAAUSDT", Side: "Buy", Size: 1, EntryPrice: 100, MarkPrice: 103, LiqPrice: 80})

	text, err := m.Report(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	got, ok := rig.ex.stops["AAAUSDT"]
	if !ok {
		t.Fatal("Expected missing stop/target re-applied")
	}
	if !floatEquals(got[0], 96, 1e-9) || !floatEquals(got[1], 106, 1e-9) {
		t.Errorf("Expected 96/106, got %v", got)
	}
	for _, want := range []string{"AAAUSDT", "Exit plan", "Partial close suggested", "Liquidation"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in report, got %q", want, text)
		}
	}
}

func TestMonitorReportKeepsExistingProtection(t *testing.T) {
	rig := newTestRig(t, "AAAUSDT")
	m := newTestMonitor(rig, &recordingSender{name: "test"})
	rig.ex.setPositions(domain.LivePosition{Symbol: "AAAUSDT", Side: "Sell", Size: 1, EntryPrice: 100, MarkPrice: 100, StopLoss: 103, TakeProfit: 95})

	if _, err := m.Report(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rig.ex.stopCalls != 0 {
		t.Errorf("Expected no stop/target writes for a protected position, got %d", rig.ex.stopCalls)
	}
}
