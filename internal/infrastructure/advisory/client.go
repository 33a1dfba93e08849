package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-reasoner"

	selectionSystemPrompt = "You are a professional crypto trader-analyst. Your decisions are accurate and based on deep analysis. Always respond with valid JSON."
	planSystemPrompt      = "You are an experienced crypto trader. Respond with valid JSON containing trading plan."
	reviewSystemPrompt    = "You are a professional crypto futures analyst reviewing an open position. Respond with valid JSON."
)

type Config struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url" default:"https://api.deepseek.com"`
	Model       string        `yaml:"model" default:"deepseek-reasoner"`
	Timeout     time.Duration `yaml:"timeout" default:"25s"`
	MaxTokens   int           `yaml:"max_tokens" default:"1000" validate:"gte=100"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
}

func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// Client talks to an OpenAI-compatible chat completion endpoint in JSON mode.
type Client struct {
	http *resty.Client
	cfg  Config
	log  zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetAuthToken(cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		http: client,
		cfg:  cfg,
		log:  log.With().Str("component", "advisor").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// advicePayload accepts both the selection and the plan shapes.
type advicePayload struct {
	Symbol            string   `json:"symbol"`
	RecommendedSymbol string   `json:"recommended_symbol"`
	Side              string   `json:"recommended_side"`
	EntryPrice        float64  `json:"entry_price"`
	StopLoss          float64  `json:"stop_loss"`
	TakeProfit        float64  `json:"take_profit"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	MissingData       []string `json:"missing_data"`
}

func (p advicePayload) toDomain() *domain.TradeAdvice {
	symbol := p.RecommendedSymbol
	if symbol == "" {
		symbol = p.Symbol
	}
	return &domain.TradeAdvice{
		Symbol:      strings.ToUpper(strings.TrimSpace(symbol)),
		Side:        p.Side,
		Entry:       p.EntryPrice,
		StopLoss:    p.StopLoss,
		TakeProfit:  p.TakeProfit,
		Confidence:  p.Confidence,
		Reasoning:   p.Reasoning,
		MissingData: p.MissingData,
	}
}

// SelectTrade asks the model to pick one instrument among the candidates.
func (c *Client) SelectTrade(ctx context.Context, req domain.AdvisoryRequest) (*domain.TradeAdvice, error) {
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates: %w", domain.ErrInsufficientData)
	}
	return c.complete(ctx, selectionSystemPrompt, selectionPrompt(req))
}

// PlanAsset asks the model for side, entry, stop and target for one instrument.
func (c *Client) PlanAsset(ctx context.Context, candidate domain.AdvisoryCandidate, req domain.AdvisoryRequest) (*domain.TradeAdvice, error) {
	advice, err := c.complete(ctx, planSystemPrompt, planPrompt(candidate, req))
	if err != nil {
		return nil, err
	}
	if advice.Symbol == "" {
		advice.Symbol = candidate.Symbol
	}
	return advice, nil
}

type reviewPayload struct {
	Signal        string  `json:"signal"`
	Justification string  `json:"justification"`
	Confidence    float64 `json:"confidence"`
	StopLoss      float64 `json:"stop_loss"`
	ProfitTarget  float64 `json:"profit_target"`
	Invalidation  string  `json:"invalidation_condition"`
}

// ReviewPosition asks for a hold, add or close opinion on one open position.
func (c *Client) ReviewPosition(ctx context.Context, pos domain.LivePosition, market domain.AdvisoryCandidate) (*domain.PositionReview, error) {
	content, err := c.chat(ctx, reviewSystemPrompt, reviewPrompt(pos, market, time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	var payload reviewPayload
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAdvisoryInvalid, err)
	}
	return &domain.PositionReview{
		Symbol:        pos.Symbol,
		Signal:        domain.ReviewSignal(strings.ToLower(strings.TrimSpace(payload.Signal))),
		Justification: payload.Justification,
		Confidence:    payload.Confidence,
		StopLoss:      payload.StopLoss,
		TakeProfit:    payload.ProfitTarget,
		Invalidation:  payload.Invalidation,
	}, nil
}

func (c *Client) complete(ctx context.Context, system, prompt string) (*domain.TradeAdvice, error) {
	content, err := c.chat(ctx, system, prompt)
	if err != nil {
		return nil, err
	}
	var payload advicePayload
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAdvisoryInvalid, err)
	}

	advice := payload.toDomain()
	c.log.Debug().Str("symbol", advice.Symbol).Str("side", advice.Side).Float64("confidence", advice.Confidence).Msg("advice received")
	return advice, nil
}

// chat runs one completion and returns the JSON content of the first choice.
func (c *Client) chat(ctx context.Context, system, prompt string) ([]byte, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, &Error{StatusCode: resp.StatusCode(), Message: msg}
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", domain.ErrAdvisoryInvalid)
	}

	content := stripCodeFence(out.Choices[0].Message.Content)
	if content == "" || content == "null" {
		return nil, fmt.Errorf("%w: empty content", domain.ErrAdvisoryInvalid)
	}
	return []byte(content), nil
}

// Error is a non-2xx answer from the completion endpoint.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("advisor http %d: %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether err is a rejected API key.
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.StatusCode == 401 || e.StatusCode == 403)
}

// stripCodeFence removes a ```json fence some models wrap around JSON mode output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ domain.Advisor = (*Client)(nil)
