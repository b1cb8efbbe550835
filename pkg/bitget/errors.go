package bitget

import (
	"errors"
	"fmt"
)

// ErrorKind classifies exchange API failures so callers branch on a typed
// contract instead of matching substrings of error messages.
type ErrorKind string

const (
	// KindRateLimited marks request throttling; retryable with backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindSymbolDelisted marks an expected terminal condition for a
	// removed trading pair; callers treat it as a valid empty result.
	KindSymbolDelisted ErrorKind = "symbol_delisted"
	// KindBadRequest marks a client-side error; never retryable.
	KindBadRequest ErrorKind = "bad_request"
	// KindServer marks a 5xx from the exchange.
	KindServer ErrorKind = "server_error"
	// KindTransport marks network-level failures and malformed responses.
	KindTransport ErrorKind = "transport_error"
)

// APIError is the typed error returned by the exchange client.
type APIError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bitget api error (%s, code %s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("bitget api error (%s): %s", e.Kind, e.Message)
}

// IsRateLimited reports whether err is a rate-limit error from the exchange.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited
}

// IsSymbolDelisted reports whether err indicates the symbol was removed
// from the exchange.
func IsSymbolDelisted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindSymbolDelisted
}

// rate-limit and delisting codes observed from the mix API.
var rateLimitCodes = map[string]bool{
	"429":   true,
	"30001": true,
	"30007": true,
}

var delistedCodes = map[string]bool{
	"40309": true,
}

func classifyCode(httpStatus int, code, message string) *APIError {
	err := &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
	switch {
	case httpStatus == 429 || rateLimitCodes[code]:
		err.Kind = KindRateLimited
	case delistedCodes[code]:
		err.Kind = KindSymbolDelisted
	case httpStatus >= 500:
		err.Kind = KindServer
	default:
		err.Kind = KindBadRequest
	}
	return err
}
