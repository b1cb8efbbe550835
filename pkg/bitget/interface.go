package bitget

import "context"

// ExchangeClient is the capability the pipeline consumes from the exchange:
// contract listing and cursor-paginated order-history retrieval. Errors are
// *APIError values so callers can branch on kind.
type ExchangeClient interface {
	ListSymbols(ctx context.Context, productType string) ([]SymbolInfo, error)
	GetHistoryOrders(ctx context.Context, req HistoryOrdersRequest) (*HistoryOrdersPage, error)
}
