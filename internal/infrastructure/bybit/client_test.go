package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

type stubExchange struct {
	mu       sync.Mutex
	routes   map[string]string
	requests []*http.Request
	bodies   map[string]map[string]any
}

func newStub(routes map[string]string) (*stubExchange, *httptest.Server) {
	s := &stubExchange{routes: routes, bodies: make(map[string]map[string]any)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r)
		if r.Method == http.MethodPost {
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			json.Unmarshal(raw, &body)
			s.bodies[r.URL.Path] = body
		}
		resp, ok := s.routes[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(resp))
	}))
	return s, srv
}

func newTestTradingClient(url string) *TradingClient {
	c := NewTradingClient("key", "secret", false, time.Second, zerolog.Nop()).WithBaseURL(url)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

const positionsResponse = `{"retCode":0,"retMsg":"OK","result":{"list":[
 {"symbol":"BTCUSDT","side":"Buy","size":"0.010","avgPrice":"50000","markPrice":"50500","unrealisedPnl":"5","liqPrice":"45000","leverage":"10","takeProfit":"","stopLoss":"49000","positionIdx":0},
 {"symbol":"ETHUSDT","side":"","size":"0","avgPrice":"0","markPrice":"3000","unrealisedPnl":"0","liqPrice":"","leverage":"5","takeProfit":"","stopLoss":"","positionIdx":0}
]}}`

func TestGetCandlesOldestFirst(t *testing.T) {
	_, srv := newStub(map[string]string{
		"/v5/market/kline": `{"retCode":0,"result":{"list":[
			["1700003600000","101","103","100","102","10","1000"],
			["1700000000000","100","102","99","101","12","1200"]]}}`,
	})
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	candles, err := c.GetCandles(context.Background(), "BTCUSDT", "60", 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}
	if candles[0].Close != 101 || candles[1].Close != 102 {
		t.Errorf("Expected oldest first, got %+v", candles)
	}
}

func TestGetTicker(t *testing.T) {
	_, srv := newStub(map[string]string{
		"/v5/market/tickers": `{"retCode":0,"result":{"list":[{"symbol":"BTCUSDT","lastPrice":"50000","highPrice24h":"51000","lowPrice24h":"49000","price24hPcnt":"0.012","turnover24h":"1000000","fundingRate":"0.0001"}]}}`,
	})
	defer srv.Close()

	ticker, err := NewClient(srv.URL, time.Second).GetTicker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ticker.LastPrice != 50000 || ticker.FundingRate != 0.0001 || ticker.Price24hPcnt != 0.012 {
		t.Errorf("Unexpected ticker %+v", ticker)
	}
}

func TestGetTickerEmptyList(t *testing.T) {
	_, srv := newStub(map[string]string{"/v5/market/tickers": `{"retCode":0,"result":{"list":[]}}`})
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GetTicker(context.Background(), "NOPEUSDT")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetOrderBookAndLotFilter(t *testing.T) {
	_, srv := newStub(map[string]string{
		"/v5/market/orderbook":        `{"retCode":0,"result":{"s":"BTCUSDT","b":[["49990","1.5"]],"a":[["50010","2"]]}}`,
		"/v5/market/instruments-info": `{"retCode":0,"result":{"list":[{"lotSizeFilter":{"minOrderQty":"0.001","qtyStep":"0.001"}}]}}`,
	})
	defer srv.Close()
	c := NewClient(srv.URL, time.Second)

	book, err := c.GetOrderBook(context.Background(), "BTCUSDT", 50)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if book.Bids[0].Price != 49990 || book.Asks[0].Size != 2 {
		t.Errorf("Unexpected book %+v", book)
	}

	lot, err := c.GetLotFilter(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if lot.MinQty != 0.001 || lot.QtyStep != 0.001 {
		t.Errorf("Unexpected lot filter %+v", lot)
	}
}

func TestRetCodeBecomesAPIError(t *testing.T) {
	_, srv := newStub(map[string]string{"/v5/market/tickers": `{"retCode":10006,"retMsg":"Too many visits!"}`})
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GetTicker(context.Background(), "BTCUSDT")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Code != 10006 || !apiErr.Recoverable() {
		t.Errorf("Expected recoverable 10006, got %+v", apiErr)
	}
}

func TestAPIErrorRecoverable(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected bool
	}{
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"server error", &APIError{StatusCode: 502}, true},
		{"unauthorized", &APIError{StatusCode: 401}, false},
		{"bad signature", &APIError{StatusCode: 200, Code: 10004}, false},
		{"insufficient balance", &APIError{StatusCode: 200, Code: 110007}, false},
		{"unknown code", &APIError{StatusCode: 200, Code: 10001}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Recoverable(); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestGetPositionsSigned(t *testing.T) {
	stub, srv := newStub(map[string]string{"/v5/position/list": positionsResponse})
	defer srv.Close()

	c := newTestTradingClient(srv.URL)
	positions, err := c.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(positions))
	}
	btc := positions[0]
	if btc.Size != 0.01 || btc.EntryPrice != 50000 || btc.StopLoss != 49000 || btc.TakeProfit != 0 {
		t.Errorf("Unexpected position %+v", btc)
	}
	if positions[1].IsActive() {
		t.Error("Expected flat ETH row to be inactive")
	}

	req := stub.requests[0]
	if req.URL.Query().Get("settleCoin") != "USDT" {
		t.Errorf("Expected settleCoin=USDT, got %s", req.URL.RawQuery)
	}
	want := c.sign("1700000000000" + "key" + defaultRecvWindow + req.URL.RawQuery)
	if got := req.Header.Get("X-BAPI-SIGN"); got != want {
		t.Errorf("Expected signature %s, got %s", want, got)
	}
	if req.Header.Get("X-BAPI-API-KEY") != "key" {
		t.Error("Expected api key header")
	}
}

func TestGetBalance(t *testing.T) {
	_, srv := newStub(map[string]string{
		"/v5/account/wallet-balance": `{"retCode":0,"result":{"list":[{"totalWalletBalance":"","coin":[{"coin":"USDT","walletBalance":"123.45"}]}]}}`,
	})
	defer srv.Close()

	balance, err := newTestTradingClient(srv.URL).GetBalance(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if balance != 123.45 {
		t.Errorf("Expected 123.45, got %v", balance)
	}
}

func TestSetLeverageNotModifiedIsSuccess(t *testing.T) {
	stub, srv := newStub(map[string]string{
		"/v5/position/set-leverage": `{"retCode":110043,"retMsg":"leverage not modified"}`,
	})
	defer srv.Close()

	if err := newTestTradingClient(srv.URL).SetLeverage(context.Background(), "BTCUSDT", 5); err != nil {
		t.Errorf("Expected not-modified to succeed, got %v", err)
	}
	body := stub.bodies["/v5/position/set-leverage"]
	if body["buyLeverage"] != "5" || body["sellLeverage"] != "5" {
		t.Errorf("Expected both sides at 5, got %v", body)
	}
}

func TestPlaceMarketOrder(t *testing.T) {
	stub, srv := newStub(map[string]string{
		"/v5/order/create": `{"retCode":0,"result":{"orderId":"abc","orderLinkId":"link-1"}}`,
	})
	defer srv.Close()

	res, err := newTestTradingClient(srv.URL).PlaceMarketOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: "Buy", Qty: 0.1 + 0.2, OrderLinkID: "link-1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.OrderID != "abc" {
		t.Errorf("Expected abc, got %s", res.OrderID)
	}
	body := stub.bodies["/v5/order/create"]
	if body["orderType"] != "Market" || body["orderLinkId"] != "link-1" {
		t.Errorf("Unexpected order body %v", body)
	}
	if qty, _ := body["qty"].(string); strings.Contains(qty, "e") || !strings.HasPrefix(qty, "0.3") {
		t.Errorf("Expected plain decimal qty, got %q", qty)
	}
	if _, ok := body["reduceOnly"]; ok {
		t.Error("Expected reduceOnly omitted on entries")
	}
}

func TestSetTradingStop(t *testing.T) {
	stub, srv := newStub(map[string]string{
		"/v5/position/list":         positionsResponse,
		"/v5/position/trading-stop": `{"retCode":0,"result":{}}`,
	})
	defer srv.Close()
	c := newTestTradingClient(srv.URL)

	if err := c.SetTradingStop(context.Background(), "BTCUSDT", 49500, 51000); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	body := stub.bodies["/v5/position/trading-stop"]
	if body["stopLoss"] != "49500" || body["takeProfit"] != "51000" || body["tpslMode"] != "Full" {
		t.Errorf("Unexpected trading-stop body %v", body)
	}

	if err := c.SetTradingStop(context.Background(), "BTCUSDT", 0, 0); !errors.Is(err, domain.ErrInvalidIntent) {
		t.Errorf("Expected ErrInvalidIntent without levels, got %v", err)
	}
}

func TestSetTradingStopWithoutPosition(t *testing.T) {
	_, srv := newStub(map[string]string{
		"/v5/position/list": `{"retCode":0,"result":{"list":[]}}`,
	})
	defer srv.Close()

	err := newTestTradingClient(srv.URL).SetTradingStop(context.Background(), "BTCUSDT", 49500, 51000)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestClosePosition(t *testing.T) {
	stub, srv := newStub(map[string]string{
		"/v5/order/create": `{"retCode":0,"result":{"orderId":"close-1"}}`,
	})
	defer srv.Close()
	c := newTestTradingClient(srv.URL)

	pos := domain.LivePosition{Symbol: "BTCUSDT", Side: "Buy", Size: 0.02}
	if _, err := c.ClosePosition(context.Background(), pos, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	body := stub.bodies["/v5/order/create"]
	if body["side"] != "Sell" || body["reduceOnly"] != true || body["qty"] != "0.02" {
		t.Errorf("Unexpected close body %v", body)
	}

	if _, err := c.ClosePosition(context.Background(), domain.LivePosition{Symbol: "BTCUSDT"}, 0); !errors.Is(err, domain.ErrZeroQuantity) {
		t.Errorf("Expected ErrZeroQuantity for a flat position, got %v", err)
	}
}
