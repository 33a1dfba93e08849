package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

func TestBroadcasterFansOut(t *testing.T) {
	ok := &recordingSender{name: "telegram"}
	broken := &recordingSender{name: "fcm", err: errors.New("token revoked")}
	b := NewBroadcaster(zerolog.Nop(), nil, ok, nil, broken)

	if got := strings.Join(b.Channels(), ","); got != "telegram,fcm" {
		t.Errorf("Expected telegram,fcm, got %s", got)
	}

	err := b.Broadcast(context.Background(), domain.Notification{Kind: "opened", Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "fcm") {
		t.Errorf("Expected fcm error, got %v", err)
	}
	if len(ok.kinds()) != 1 || len(broken.kinds()) != 1 {
		t.Error("Expected every channel to be attempted")
	}
}

func TestBufferResponder(t *testing.T) {
	var r BufferResponder
	r.Reply(context.Background(), "first")
	r.Reply(context.Background(), "second")

	if got := r.String(); got != "first\n\nsecond" {
		t.Errorf("Expected joined replies, got %q", got)
	}
}

func TestEventNotification(t *testing.T) {
	tests := []struct {
		name  string
		event domain.PositionEvent
		title string
		body  string
	}{
		{"opened", domain.PositionEvent{Kind: domain.EventOpened, Symbol: "BTCUSDT", Side: domain.Long, EntryPrice: 50000}, "Position opened: BTCUSDT", "Entry: $50000.0000"},
		{"closed", domain.PositionEvent{Kind: domain.EventClosed, Symbol: "BTCUSDT", PnL: -3, PnLPct: -1.5}, "Position closed", "P&L: $-3.00 (-1.50%)"},
		{"near liquidation", domain.PositionEvent{Kind: domain.EventNearLiquidation, Symbol: "ETHUSDT", Detail: 1.25}, "close to liquidation", "1.25%"},
		{"target", domain.PositionEvent{Kind: domain.EventTargetReached, Symbol: "SOLUSDT", PnLPct: 1.6, Detail: 2}, "Target profit", "Progress: 80.0%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := eventNotification(tt.event)
			if !strings.Contains(n.Title, tt.title) {
				t.Errorf("Expected title containing %q, got %q", tt.title, n.Title)
			}
			if !strings.Contains(n.Body, tt.body) {
				t.Errorf("Expected body containing %q, got %q", tt.body, n.Body)
			}
			if n.Data["symbol"] != tt.event.Symbol {
				t.Errorf("Expected symbol data %s, got %s", tt.event.Symbol, n.Data["symbol"])
			}
		})
	}
}
