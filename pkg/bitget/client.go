package bitget

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/openpnl/bitget-orders-go/internal/config"
)

const (
	pathContracts          = "/api/mix/v1/market/contracts"
	pathHistoryOrders      = "/api/mix/v1/order/history"
	pathHistoryProductType = "/api/mix/v1/order/historyProductType"
	successCode            = "00000"
	defaultRequestsPerSec  = 8
	defaultRateBurst       = 2
)

// Client is the HTTP client for the Bitget mix (futures) API. Requests are
// signed with the account credentials and throttled client-side so a single
// invocation stays under the exchange's per-key limits.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
	passphrase string
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a Bitget client from configuration.
func NewClient(cfg *config.ExchangeConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSec
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = defaultRateBurst
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		now:        time.Now,
	}
}

// ListSymbols retrieves all contracts for a product type.
func (c *Client) ListSymbols(ctx context.Context, productType string) ([]SymbolInfo, error) {
	params := url.Values{}
	params.Set("productType", productType)

	var response contractsResponse
	if err := c.makeRequest(ctx, pathContracts, params, &response); err != nil {
		return nil, err
	}
	if response.Code != "" && response.Code != successCode {
		return nil, classifyCode(http.StatusOK, response.Code, response.Msg)
	}
	return response.Data, nil
}

// GetHistoryOrders retrieves one page of historical orders. The cursor in
// req.LastEndID selects the page; an empty cursor starts from the newest
// orders in the requested range.
func (c *Client) GetHistoryOrders(ctx context.Context, req HistoryOrdersRequest) (*HistoryOrdersPage, error) {
	params := url.Values{}
	path := pathHistoryProductType
	if req.Symbol != "" {
		path = pathHistoryOrders
		params.Set("symbol", req.Symbol)
	} else {
		params.Set("productType", req.ProductType)
	}
	params.Set("startTime", strconv.FormatInt(req.StartTime, 10))
	params.Set("endTime", strconv.FormatInt(req.EndTime, 10))
	params.Set("pageSize", strconv.Itoa(req.PageSize))
	if req.LastEndID != "" {
		params.Set("lastEndId", req.LastEndID)
	}
	if req.IsPre {
		params.Set("isPre", "true")
	}

	var response historyOrdersResponse
	if err := c.makeRequest(ctx, path, params, &response); err != nil {
		return nil, err
	}
	if response.Code != "" && response.Code != successCode {
		return nil, classifyCode(http.StatusOK, response.Code, response.Msg)
	}

	return &HistoryOrdersPage{
		Orders:   response.Data.OrderList,
		EndID:    response.Data.EndID,
		NextFlag: response.Data.NextFlag,
	}, nil
}

// makeRequest performs a signed GET against the exchange and decodes the
// response into result.
func (c *Client) makeRequest(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Kind: KindTransport, Message: fmt.Sprintf("rate limiter wait: %v", err)}
	}

	requestPath := path
	if encoded := params.Encode(); encoded != "" {
		requestPath += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
	if err != nil {
		return &APIError{Kind: KindTransport, Message: fmt.Sprintf("create request: %v", err)}
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-SIGN", c.sign(timestamp, http.MethodGet, requestPath, ""))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("locale", "en-US")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransport, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindTransport, Message: fmt.Sprintf("read response body: %v", err)}
	}

	if resp.StatusCode >= 400 {
		var errResp apiResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Code != "" {
			return classifyCode(resp.StatusCode, errResp.Code, errResp.Msg)
		}
		return classifyCode(resp.StatusCode, "", strings.TrimSpace(string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &APIError{Kind: KindTransport, Message: fmt.Sprintf("unmarshal response: %v", err)}
		}
	}
	return nil
}

// sign computes the request signature: base64(HMAC-SHA256(secret,
// timestamp + method + requestPath + body)).
func (c *Client) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
