package repository

import (
	"sort"
	"strings"
	"sync"

	"perp-autotrader/internal/domain"
)

// DeviceToken represents a registered push device.
type DeviceToken struct {
	Token     string `json:"token"`
	Platform  string `json:"platform"` // "android", "ios" or "web"
	CreatedAt int64  `json:"createdAt"`
}

// TokenRepository keeps FCM device tokens in memory. Devices re-register on start, so
// losing them on restart only delays alerts until the app is opened again.
type TokenRepository struct {
	tokens map[string]*DeviceToken
	mu     sync.RWMutex
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		tokens: make(map[string]*DeviceToken),
	}
}

func normalizePlatform(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "android", "ios", "web":
		return p
	}
	return "android"
}

// RegisterToken adds or refreshes a device token. Blank tokens are ignored.
func (r *TokenRepository) RegisterToken(token, platform string, timestamp int64) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = &DeviceToken{
		Token:     token,
		Platform:  normalizePlatform(platform),
		CreatedAt: timestamp,
	}
}

func (r *TokenRepository) UnregisterToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, strings.TrimSpace(token))
}

// GetAllTokens returns the tokens, oldest registration first.
func (r *TokenRepository) GetAllTokens() []string {
	devices := r.Devices()
	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = d.Token
	}
	return tokens
}

func (r *TokenRepository) GetTokenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Devices returns a copy of every registration, oldest first.
func (r *TokenRepository) Devices() []DeviceToken {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceToken, 0, len(r.tokens))
	for _, d := range r.tokens {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

var _ domain.TokenRepository = (*TokenRepository)(nil)
