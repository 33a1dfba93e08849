package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"perp-autotrader/internal/domain"
)

const (
	MainnetBaseURL = "https://api.bybit.com"
	TestnetBaseURL = "https://api-testnet.bybit.com"

	categoryLinear = "linear"
)

// Client reads public market data for USDT linear perpetuals.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = MainnetBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope is the common v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

// decodeEnvelope turns a non-200 status or a non-zero retCode into an *APIError and
// unmarshals result into out otherwise.
func decodeEnvelope(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.RetCode != 0 {
		return &APIError{StatusCode: resp.StatusCode, Code: env.RetCode, Message: env.RetMsg, Body: string(body)}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

// GetCandles returns klines oldest first. Bybit sends them newest first.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/kline", params, &result); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		candles = append(candles, domain.Candle{
			OpenTime: time.UnixMilli(ms).UTC(),
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)

	var result struct {
		List []struct {
			Symbol            string `json:"symbol"`
			LastPrice         string `json:"lastPrice"`
			Bid1Price         string `json:"bid1Price"`
			Ask1Price         string `json:"ask1Price"`
			Price24hPcnt      string `json:"price24hPcnt"`
			HighPrice24h      string `json:"highPrice24h"`
			LowPrice24h       string `json:"lowPrice24h"`
			Volume24h         string `json:"volume24h"`
			Turnover24h       string `json:"turnover24h"`
			FundingRate       string `json:"fundingRate"`
			OpenInterestValue string `json:"openInterestValue"`
		} `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("ticker %s: %w", symbol, domain.ErrNotFound)
	}

	t := result.List[0]
	return &domain.Ticker{
		Symbol:            t.Symbol,
		LastPrice:         parseFloat(t.LastPrice),
		Bid1Price:         parseFloat(t.Bid1Price),
		Ask1Price:         parseFloat(t.Ask1Price),
		Price24hPcnt:      parseFloat(t.Price24hPcnt),
		HighPrice24h:      parseFloat(t.HighPrice24h),
		LowPrice24h:       parseFloat(t.LowPrice24h),
		Volume24h:         parseFloat(t.Volume24h),
		Turnover24h:       parseFloat(t.Turnover24h),
		FundingRate:       parseFloat(t.FundingRate),
		OpenInterestValue: parseFloat(t.OpenInterestValue),
	}, nil
}

func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(depth))

	var result struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	}
	if err := c.get(ctx, "/v5/market/orderbook", params, &result); err != nil {
		return nil, err
	}
	if len(result.Bids) == 0 && len(result.Asks) == 0 {
		return nil, fmt.Errorf("order book %s: %w", symbol, domain.ErrNotFound)
	}
	return &domain.OrderBook{
		Symbol: symbol,
		Bids:   parseLevels(result.Bids),
		Asks:   parseLevels(result.Asks),
	}, nil
}

func (c *Client) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]domain.PublicTrade, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var result struct {
		List []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
			Side  string `json:"side"`
			Time  string `json:"time"`
		} `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/recent-trade", params, &result); err != nil {
		return nil, err
	}

	trades := make([]domain.PublicTrade, 0, len(result.List))
	for _, t := range result.List {
		ms, _ := strconv.ParseInt(t.Time, 10, 64)
		trades = append(trades, domain.PublicTrade{
			Price: parseFloat(t.Price),
			Size:  parseFloat(t.Size),
			Side:  t.Side,
			Time:  time.UnixMilli(ms).UTC(),
		})
	}
	return trades, nil
}

func (c *Client) GetLotFilter(ctx context.Context, symbol string) (*domain.LotFilter, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", symbol)

	var result struct {
		List []struct {
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				QtyStep     string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/instruments-info", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("instrument %s: %w", symbol, domain.ErrNotFound)
	}
	f := result.List[0].LotSizeFilter
	return &domain.LotFilter{
		MinQty:  parseFloat(f.MinOrderQty),
		QtyStep: parseFloat(f.QtyStep),
	}, nil
}

func parseLevels(rows [][]string) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: parseFloat(r[0]), Size: parseFloat(r[1])})
	}
	return levels
}

// parseFloat treats empty and malformed fields as 0, like the exchange's own "" for unset levels.
func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
