package bitget

import (
	"github.com/openpnl/bitget-orders-go/internal/models"
)

// apiResponse is the common wire envelope of the mix API.
type apiResponse struct {
	Code        string             `json:"code"`
	Msg         string             `json:"msg"`
	RequestTime models.EpochMillis `json:"requestTime"`
}

// SymbolInfo describes one tradable contract.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	BaseCoin   string `json:"baseCoin"`
	QuoteCoin  string `json:"quoteCoin"`
	Status     string `json:"symbolStatus,omitempty"`
	SymbolType string `json:"symbolType,omitempty"`
}

type contractsResponse struct {
	apiResponse
	Data []SymbolInfo `json:"data"`
}

// HistoryOrdersRequest parameterizes one page of the order-history scan.
// When Symbol is set the symbol-scoped endpoint is used, otherwise the
// productType-scoped one.
type HistoryOrdersRequest struct {
	ProductType string
	Symbol      string
	StartTime   int64
	EndTime     int64
	PageSize    int
	LastEndID   string
	IsPre       bool
}

// HistoryOrdersPage is one page of cursor-paginated order history.
type HistoryOrdersPage struct {
	Orders   []models.Order
	EndID    string
	NextFlag bool
}

type historyOrdersResponse struct {
	apiResponse
	Data struct {
		OrderList []models.Order `json:"orderList"`
		EndID     string         `json:"endId"`
		NextFlag  bool           `json:"nextFlag"`
	} `json:"data"`
}
