package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"perp-autotrader/internal/domain"
)

const defaultRecvWindow = "5000"

// TradingClient handles authenticated Bybit v5 requests. It embeds the public Client, so
// one value serves as the whole domain.Exchange.
type TradingClient struct {
	*Client
	apiKey     string
	secretKey  string
	recvWindow string
	log        zerolog.Logger
	now        func() time.Time
}

// NewTradingClient creates a new authenticated Bybit client.
func NewTradingClient(apiKey, secretKey string, isTestnet bool, timeout time.Duration, log zerolog.Logger) *TradingClient {
	baseURL := MainnetBaseURL
	if isTestnet {
		baseURL = TestnetBaseURL
	}
	return &TradingClient{
		Client:     NewClient(baseURL, timeout),
		apiKey:     apiKey,
		secretKey:  secretKey,
		recvWindow: defaultRecvWindow,
		log:        log.With().Str("component", "bybit").Logger(),
		now:        time.Now,
	}
}

// WithBaseURL points the client at another host, e.g. a local stub in tests.
func (c *TradingClient) WithBaseURL(baseURL string) *TradingClient {
	c.Client = NewClient(baseURL, c.httpClient.Timeout)
	return c
}

// TestConnection tests if API credentials are valid.
func (c *TradingClient) TestConnection(ctx context.Context) error {
	_, err := c.GetBalance(ctx)
	return err
}

type positionRow struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	LiqPrice      string `json:"liqPrice"`
	Leverage      string `json:"leverage"`
	TakeProfit    string `json:"takeProfit"`
	StopLoss      string `json:"stopLoss"`
	PositionIdx   int    `json:"positionIdx"`
}

func (r positionRow) toDomain() domain.LivePosition {
	return domain.LivePosition{
		Symbol:        r.Symbol,
		Side:          r.Side,
		Size:          parseFloat(r.Size),
		EntryPrice:    parseFloat(r.AvgPrice),
		MarkPrice:     parseFloat(r.MarkPrice),
		UnrealizedPnL: parseFloat(r.UnrealisedPnl),
		LiqPrice:      parseFloat(r.LiqPrice),
		Leverage:      parseFloat(r.Leverage),
		TakeProfit:    parseFloat(r.TakeProfit),
		StopLoss:      parseFloat(r.StopLoss),
		PositionIdx:   r.PositionIdx,
	}
}

// GetPositions returns every USDT-settled linear position, flat ones included.
func (c *TradingClient) GetPositions(ctx context.Context) ([]domain.LivePosition, error) {
	return c.positions(ctx, "")
}

func (c *TradingClient) positions(ctx context.Context, symbol string) ([]domain.LivePosition, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	if symbol != "" {
		params.Set("symbol", symbol)
	} else {
		params.Set("settleCoin", "USDT")
	}

	var result struct {
		List []positionRow `json:"list"`
	}
	if err := c.signedGet(ctx, "/v5/position/list", params, &result); err != nil {
		return nil, err
	}
	out := make([]domain.LivePosition, 0, len(result.List))
	for _, row := range result.List {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// GetBalance returns the unified account's total wallet balance in USD.
func (c *TradingClient) GetBalance(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	var result struct {
		List []struct {
			TotalWalletBalance string `json:"totalWalletBalance"`
			Coin               []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := c.signedGet(ctx, "/v5/account/wallet-balance", params, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("wallet: %w", domain.ErrNotFound)
	}

	acct := result.List[0]
	if total := parseFloat(acct.TotalWalletBalance); total > 0 {
		return total, nil
	}
	for _, coin := range acct.Coin {
		if coin.Coin == "USDT" {
			return parseFloat(coin.WalletBalance), nil
		}
	}
	return 0, nil
}

// SetLeverage sets the same leverage for both sides. "Leverage not modified" is success.
func (c *TradingClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	err := c.signedPost(ctx, "/v5/position/set-leverage", map[string]any{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}, nil)
	if isCode(err, codeLeverageNotModified) {
		c.log.Debug().Str("symbol", symbol).Int("leverage", leverage).Msg("leverage already set")
		return nil
	}
	return err
}

func (c *TradingClient) PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	body := map[string]any{
		"category":  categoryLinear,
		"symbol":    req.Symbol,
		"side":      req.Side,
		"orderType": "Market",
		"qty":       formatNumber(req.Qty),
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}
	if req.OrderLinkID != "" {
		body["orderLinkId"] = req.OrderLinkID
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := c.signedPost(ctx, "/v5/order/create", body, &result); err != nil {
		return nil, err
	}
	c.log.Info().Str("symbol", req.Symbol).Str("side", req.Side).Float64("qty", req.Qty).Str("order_id", result.OrderID).Msg("market order placed")
	return &domain.OrderResult{OrderID: result.OrderID, OrderLinkID: result.OrderLinkID}, nil
}

// SetTradingStop writes stop and target onto the open position. A level <= 0 is left
// untouched. The position index is read from the exchange; one-way mode uses 0.
func (c *TradingClient) SetTradingStop(ctx context.Context, symbol string, stopLoss, takeProfit float64) error {
	if stopLoss <= 0 && takeProfit <= 0 {
		return fmt.Errorf("trading stop %s: %w", symbol, domain.ErrInvalidIntent)
	}

	idx := 0
	positions, err := c.positions(ctx, symbol)
	if err != nil {
		return err
	}
	found := false
	for _, p := range positions {
		if p.IsActive() {
			idx = p.PositionIdx
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("position %s: %w", symbol, domain.ErrNotFound)
	}

	body := map[string]any{
		"category":    categoryLinear,
		"symbol":      symbol,
		"positionIdx": idx,
		"tpslMode":    "Full",
	}
	if stopLoss > 0 {
		body["stopLoss"] = formatNumber(stopLoss)
	}
	if takeProfit > 0 {
		body["takeProfit"] = formatNumber(takeProfit)
	}

	err = c.signedPost(ctx, "/v5/position/trading-stop", body, nil)
	if isCode(err, codeStopNotModified) {
		return nil
	}
	return err
}

// CancelConditionalOrders cancels the symbol's stop/target orders.
func (c *TradingClient) CancelConditionalOrders(ctx context.Context, symbol string) error {
	return c.signedPost(ctx, "/v5/order/cancel-all", map[string]any{
		"category":    categoryLinear,
		"symbol":      symbol,
		"orderFilter": "tpslOrder",
	}, nil)
}

// ClosePosition sends a reduce-only market order on the opposite side.
func (c *TradingClient) ClosePosition(ctx context.Context, pos domain.LivePosition, qty float64) (*domain.OrderResult, error) {
	size := math.Abs(pos.Size)
	if qty <= 0 || qty > size {
		qty = size
	}
	if qty <= 0 {
		return nil, fmt.Errorf("close %s: %w", pos.Symbol, domain.ErrZeroQuantity)
	}
	return c.PlaceMarketOrder(ctx, domain.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       pos.ResolveSide().Opposite().OrderSide(),
		Qty:        qty,
		ReduceOnly: true,
	})
}

func (c *TradingClient) signedGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	query := params.Encode()
	fullURL := c.baseURL + endpoint
	if query != "" {
		fullURL += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	c.signRequest(req, query)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

func (c *TradingClient) signedPost(ctx context.Context, endpoint string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signRequest(req, string(payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

// signRequest sets the v5 auth headers. The signed string is
// timestamp + apiKey + recvWindow + (query string | JSON body).
func (c *TradingClient) signRequest(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", c.sign(timestamp+c.apiKey+c.recvWindow+payload))
}

// sign creates HMAC SHA256 signature
func (c *TradingClient) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func isCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// formatNumber renders v without exponent or float noise.
func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}
