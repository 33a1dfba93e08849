package http

import (
	"net/http"
	"strconv"
	"time"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/usecase"
)

// TestHandler sends a test message through every notification channel.
type TestHandler struct {
	notifier *usecase.Broadcaster
}

func NewTestHandler(notifier *usecase.Broadcaster) *TestHandler {
	return &TestHandler{notifier: notifier}
}

// SendTestNotification handles POST /api/notify/test
func (h *TestHandler) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	channels := h.notifier.Channels()
	if len(channels) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No notification channels configured",
		})
		return
	}

	err := h.notifier.Broadcast(r.Context(), domain.Notification{
		Kind:  "test",
		Title: "🧪 Test Notification",
		Body:  "If you see this, notifications are working! ✅",
		Data: map[string]string{
			"type":      "test",
			"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		},
	})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"message":  "Some channels failed: " + err.Error(),
			"channels": channels,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Test notification sent successfully",
		"channels": channels,
	})
}
