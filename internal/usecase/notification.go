package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

// Broadcaster fans a notification out to every configured channel.
type Broadcaster struct {
	log     zerolog.Logger
	metrics domain.Metrics

	mu      sync.RWMutex
	senders []domain.Sender
}

func NewBroadcaster(log zerolog.Logger, metrics domain.Metrics, senders ...domain.Sender) *Broadcaster {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	b := &Broadcaster{
		log:     log.With().Str("component", "notify").Logger(),
		metrics: metrics,
	}
	for _, s := range senders {
		b.Add(s)
	}
	return b
}

// Add registers a sender. nil senders are ignored.
func (b *Broadcaster) Add(s domain.Sender) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.senders = append(b.senders, s)
	b.mu.Unlock()
}

func (b *Broadcaster) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.senders))
	for _, s := range b.senders {
		names = append(names, s.Name())
	}
	return names
}

// Broadcast delivers n to all channels and joins their errors. One failing channel does
// not stop the others.
func (b *Broadcaster) Broadcast(ctx context.Context, n domain.Notification) error {
	b.mu.RLock()
	senders := append([]domain.Sender(nil), b.senders...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range senders {
		err := s.Send(ctx, n)
		b.metrics.RecordNotification(s.Name(), err == nil)
		if err != nil {
			b.log.Warn().Err(err).Str("channel", s.Name()).Str("kind", n.Kind).Msg("notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Text broadcasts a plain text message.
func (b *Broadcaster) Text(ctx context.Context, kind, text string) error {
	return b.Broadcast(ctx, domain.Notification{Kind: kind, Body: text})
}

// BroadcastResponder replies by broadcasting to every channel. Scheduled tasks use it.
type BroadcastResponder struct {
	Broadcaster *Broadcaster
	Kind        string
}

func (r BroadcastResponder) Reply(ctx context.Context, text string) error {
	return r.Broadcaster.Text(ctx, r.Kind, text)
}

// BufferResponder collects replies for a synchronous caller such as an HTTP request or
// the CLI.
type BufferResponder struct {
	mu    sync.Mutex
	lines []string
}

func (r *BufferResponder) Reply(_ context.Context, text string) error {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	r.mu.Unlock()
	return nil
}

func (r *BufferResponder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *BufferResponder) String() string {
	return strings.Join(r.Lines(), "\n\n")
}
