// Package supabase provides a client for Supabase PostgREST.
// Used as a snapshot source: credit score from customer_profiles, balance
// from the primary active account, history from customer_transactions.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/features"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/resilience"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client. Without a service role key the anon
// key is used as bearer token.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	if serviceRoleKey == "" {
		serviceRoleKey = apiKey
	}
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// doRequest executes an authenticated GET against PostgREST. A 404 or 204
// yields a nil body.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("supabase returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("supabase: request OK",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

// getRows fetches path and decodes a JSON array into dst.
func (c *Client) getRows(ctx context.Context, path string, dst any) error {
	body, err := c.doRequest(ctx, path)
	if err != nil {
		return err
	}
	if body == nil {
		body = []byte("[]")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return resilience.Permanent(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

// --- Account summary (implements port.AccountFetcher) ---

type supabaseProfile struct {
	CustomerID  string `json:"customer_id"`
	CreditScore *int   `json:"credit_score"`
}

type supabaseAccount struct {
	Balance *decimal.Decimal `json:"balance"`
}

// GetAccount combines the profile credit score with the primary account balance.
func (c *Client) GetAccount(ctx context.Context, customerID string) (*domain.AccountSummary, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	id := url.QueryEscape(customerID)
	return resilience.Call(ctx, c.cb, c.cfg, "supabase/account", func() (*domain.AccountSummary, error) {
		var profiles []supabaseProfile
		if err := c.getRows(ctx, fmt.Sprintf("customer_profiles?customer_id=eq.%s&select=customer_id,credit_score&limit=1", id), &profiles); err != nil {
			return nil, err
		}
		if len(profiles) == 0 {
			return nil, &domain.ErrNotFound{Resource: "profile", ID: customerID}
		}
		if profiles[0].CreditScore == nil {
			return nil, resilience.Permanent(&domain.ErrExternalService{
				Service: "supabase/account",
				Err:     errors.New("profile has no credit_score"),
			})
		}

		var accounts []supabaseAccount
		if err := c.getRows(ctx, fmt.Sprintf("accounts?customer_id=eq.%s&status=eq.active&order=created_at.asc&select=balance&limit=1", id), &accounts); err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			return nil, &domain.ErrNotFound{Resource: "account", ID: customerID}
		}
		if accounts[0].Balance == nil {
			return nil, resilience.Permanent(&domain.ErrExternalService{
				Service: "supabase/account",
				Err:     errors.New("account has no balance"),
			})
		}

		return &domain.AccountSummary{
			CustomerID:     customerID,
			CurrentBalance: *accounts[0].Balance,
			FICOScore:      *profiles[0].CreditScore,
		}, nil
	})
}

// --- Transactions (implements port.TransactionsFetcher) ---

// supabaseTransaction maps Supabase table columns. Amounts are signed:
// negative values are money leaving the account.
type supabaseTransaction struct {
	ID       string           `json:"id"`
	Date     string           `json:"date"`
	Amount   *decimal.Decimal `json:"amount"`
	Type     string           `json:"type"`
	Category string           `json:"category"`
}

// GetTransactions fetches the complete history in ascending date order.
func (c *Client) GetTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	path := fmt.Sprintf("customer_transactions?customer_id=eq.%s&select=id,date,amount,type,category&order=date.asc,id.asc", url.QueryEscape(customerID))
	return resilience.Call(ctx, c.cb, c.cfg, "supabase/transactions", func() ([]domain.Transaction, error) {
		var rows []supabaseTransaction
		if err := c.getRows(ctx, path, &rows); err != nil {
			return nil, err
		}

		txs := make([]domain.Transaction, 0, len(rows))
		for i, r := range rows {
			tx, err := toTransaction(i, r)
			if err != nil {
				return nil, resilience.Permanent(&domain.ErrExternalService{Service: "supabase/transactions", Err: err})
			}
			txs = append(txs, tx)
		}
		return txs, nil
	})
}

// toTransaction maps a row onto the debit/credit model. Explicit debit and
// credit types are kept; other types take their direction from the sign.
func toTransaction(i int, r supabaseTransaction) (domain.Transaction, error) {
	if r.Amount == nil {
		return domain.Transaction{}, &domain.ErrMalformedTransactions{Index: i, Field: "amount", Reason: "field is required"}
	}
	postDate, err := features.ParsePostDate(r.Date)
	if err != nil {
		return domain.Transaction{}, &domain.ErrMalformedTransactions{Index: i, Field: "date", Reason: err.Error()}
	}

	typ, ok := domain.ParseTransactionType(r.Type)
	if !ok {
		typ = domain.TransactionCredit
		if r.Amount.IsNegative() {
			typ = domain.TransactionDebit
		}
	}

	return domain.Transaction{
		ID:       r.ID,
		Amount:   r.Amount.Abs(),
		Category: r.Category,
		Type:     typ,
		PostDate: postDate,
	}, nil
}
