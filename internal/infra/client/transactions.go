package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/features"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/resilience"
)

// TransactionsClient fetches transaction history from the Transactions API.
type TransactionsClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewTransactionsClient creates a new TransactionsClient.
func NewTransactionsClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *TransactionsClient {
	return &TransactionsClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// GetTransactions fetches the full history with retry, circuit breaker, and tracing.
// Records use the same shape as snapshot transactions.
func (c *TransactionsClient) GetTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionsClient.GetTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	txs, err := resilience.Call(ctx, c.cb, c.cfg, "transactions", func() ([]domain.Transaction, error) {
		endpoint := fmt.Sprintf("%s/v1/customers/%s/transactions", c.baseURL, url.PathEscape(customerID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, &domain.ErrNotFound{Resource: "transactions", ID: customerID}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("transactions API returned status %d", resp.StatusCode)
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		txs, err := features.ParseTransactions(json.RawMessage(raw))
		if err != nil {
			return nil, resilience.Permanent(&domain.ErrExternalService{Service: "transactions", Err: err})
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("transactions.count", len(txs)))
	return txs, nil
}
