package bybit

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Return codes that are treated as success or need special handling.
const (
	codeLeverageNotModified = 110043
	codeStopNotModified     = 34040
)

// Return codes after which repeating the same request cannot succeed.
var fatalCodes = map[int]bool{
	10003:  true, // invalid api key
	10004:  true, // invalid signature
	10005:  true, // permission denied
	10007:  true, // user authentication failed
	10010:  true, // unmatched ip
	110007: true, // insufficient available balance
	110017: true, // reduce-only rejected, position is zero
}

// APIError captures structured error info returned by Bybit.
type APIError struct {
	StatusCode int
	Code       int    `json:"retCode"`
	Message    string `json:"retMsg"`
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "bybit API error"
	}
	if e.Code != 0 || e.Message != "" {
		return fmt.Sprintf("bybit API error %d (code=%d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("bybit API error %d: %s", e.StatusCode, e.Body)
}

// Recoverable reports whether a retry can help. Rate limits and server errors can,
// credential and balance errors cannot.
func (e *APIError) Recoverable() bool {
	if e == nil {
		return false
	}
	if fatalCodes[e.Code] {
		return false
	}
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return false
	}
	return true
}

func parseAPIError(statusCode int, body []byte) error {
	var parsed struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.RetCode != 0 || parsed.RetMsg != "") {
		return &APIError{StatusCode: statusCode, Code: parsed.RetCode, Message: parsed.RetMsg, Body: string(body)}
	}
	return &APIError{StatusCode: statusCode, Body: string(body)}
}
