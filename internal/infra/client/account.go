package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

// AccountClient fetches balance and credit score from the Account API.
type AccountClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewAccountClient creates a new AccountClient.
func NewAccountClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AccountClient {
	return &AccountClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type accountResponse struct {
	CustomerID     string           `json:"customer_id"`
	CurrentBalance *decimal.Decimal `json:"current_balance"`
	FICOScore      *int             `json:"fico_score"`
}

// GetAccount fetches the account summary with retry, circuit breaker, and tracing.
func (c *AccountClient) GetAccount(ctx context.Context, customerID string) (*domain.AccountSummary, error) {
	ctx, span := tracer.Start(ctx, "AccountClient.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	return resilience.Call(ctx, c.cb, c.cfg, "account", func() (*domain.AccountSummary, error) {
		endpoint := fmt.Sprintf("%s/v1/customers/%s/account", c.baseURL, url.PathEscape(customerID))
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
			return nil, &domain.ErrNotFound{Resource: "account", ID: customerID}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("account API returned status %d", resp.StatusCode)
		}

		var body accountResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, resilience.Permanent(&domain.ErrExternalService{Service: "account", Err: err})
		}
		if body.CurrentBalance == nil || body.FICOScore == nil {
			return nil, resilience.Permanent(&domain.ErrExternalService{
				Service: "account",
				Err:     errors.New("response lacks current_balance or fico_score"),
			})
		}

		return &domain.AccountSummary{
			CustomerID:     customerID,
			CurrentBalance: *body.CurrentBalance,
			FICOScore:      *body.FICOScore,
		}, nil
	})
}
