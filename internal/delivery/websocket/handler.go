package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/usecase"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	clientSend = 16
)

// StatusProvider is the part of the engine the dashboard streams.
type StatusProvider interface {
	Status(ctx context.Context) (*usecase.Status, error)
}

// Frame is one message pushed to dashboard clients.
type Frame struct {
	Type         string               `json:"type"` // "status" or "notification"
	Status       *usecase.Status      `json:"status,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
	At           time.Time            `json:"at"`
}

// Handler streams engine status to connected dashboards and relays notifications to them.
type Handler struct {
	status   StatusProvider
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[chan Frame]struct{}
}

func NewHandler(status StatusProvider, interval time.Duration, log zerolog.Logger) *Handler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Handler{
		status:   status,
		interval: interval,
		log:      log.With().Str("component", "websocket").Logger(),
		clients:  make(map[chan Frame]struct{}),
	}
}

func (h *Handler) Name() string { return "dashboard" }

// Send queues n for every connected client. Slow clients drop the frame.
func (h *Handler) Send(_ context.Context, n domain.Notification) error {
	frame := Frame{Type: "notification", Notification: &n, At: time.Now()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
			h.log.Warn().Str("kind", n.Kind).Msg("dashboard client lagging, frame dropped")
		}
	}
	return nil
}

func (h *Handler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Handler) register() chan Frame {
	ch := make(chan Frame, clientSend)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Handler) unregister(ch chan Frame) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	frames := h.register()
	defer h.unregister(frames)
	h.log.Info().Str("remote", r.RemoteAddr).Msg("dashboard client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader only watches for the close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.writeStatus(ctx, conn); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.writeStatus(ctx, conn); err != nil {
				return
			}
		case frame := <-frames:
			if err := h.write(conn, frame); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeStatus(ctx context.Context, conn *websocket.Conn) error {
	st, err := h.status.Status(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("status unavailable")
		return nil
	}
	return h.write(conn, Frame{Type: "status", Status: st, At: time.Now()})
}

func (h *Handler) write(conn *websocket.Conn, frame Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		h.log.Debug().Err(err).Msg("write error")
		return err
	}
	return nil
}

var _ domain.Sender = (*Handler)(nil)
