package supabase_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/supabase"
)

var testCfg = resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}

func newTestClient(t *testing.T, handler http.HandlerFunc) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return supabase.NewClient(srv.Client(), srv.URL, "anon", "service", resilience.NewCircuitBreaker(t.Name()), testCfg, zap.NewNop())
}

func TestGetAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer service" {
			t.Errorf("missing auth headers")
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/customer_profiles"):
			_, _ = w.Write([]byte(`[{"customer_id":"c-1","credit_score":476}]`))
		case strings.HasSuffix(r.URL.Path, "/accounts"):
			if r.URL.Query().Get("status") != "eq.active" {
				t.Errorf("expected active filter, got %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`[{"balance":9270.02}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	acc, err := c.GetAccount(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.FICOScore != 476 || !acc.CurrentBalance.Equal(decimal.RequireFromString("9270.02")) {
		t.Errorf("unexpected account %+v", acc)
	}
}

func TestGetAccount_NoProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.GetAccount(context.Background(), "ghost")

	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTransactions_MapsSignedAmounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order"); got != "date.asc,id.asc" {
			t.Errorf("expected ascending order, got %s", got)
		}
		_, _ = w.Write([]byte(`[
			{"id":"1","date":"2024-03-01T10:00:00Z","amount":-50.25,"type":"pix_sent","category":"pix"},
			{"id":"2","date":"2024-03-02","amount":1200,"type":"pix_received","category":"recebimento"},
			{"id":"3","date":"2024-03-03T08:00:00-03:00","amount":30,"type":"DEBIT","category":"fees"}
		]`))
	})

	txs, err := c.GetTransactions(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}

	want := []struct {
		typ    domain.TransactionType
		amount string
		date   string
	}{
		{domain.TransactionDebit, "50.25", "2024-03-01"},
		{domain.TransactionCredit, "1200", "2024-03-02"},
		{domain.TransactionDebit, "30", "2024-03-03"},
	}
	for i, w := range want {
		if txs[i].Type != w.typ {
			t.Errorf("[%d] expected %s, got %s", i, w.typ, txs[i].Type)
		}
		if !txs[i].Amount.Equal(decimal.RequireFromString(w.amount)) {
			t.Errorf("[%d] expected amount %s, got %s", i, w.amount, txs[i].Amount)
		}
		if txs[i].PostDate.String() != w.date {
			t.Errorf("[%d] expected date %s, got %s", i, w.date, txs[i].PostDate)
		}
	}
}

func TestGetTransactions_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	txs, err := c.GetTransactions(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func TestGetTransactions_BadDate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","date":"yesterday","amount":1,"type":"credit","category":"x"}]`))
	})

	_, err := c.GetTransactions(context.Background(), "c-1")

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestGetAccount_NullBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/customer_profiles"):
			_, _ = w.Write([]byte(`[{"customer_id":"c-1","credit_score":476}]`))
		case strings.HasSuffix(r.URL.Path, "/accounts"):
			_, _ = w.Write([]byte(`[{"balance":null}]`))
		}
	})

	acc, err := c.GetAccount(context.Background(), "c-1")

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got acc=%+v err=%v", acc, err)
	}
	if ext.Service != "supabase/account" {
		t.Errorf("expected supabase/account, got %s", ext.Service)
	}
}

func TestGetTransactions_NullAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"t0","date":"2024-03-01","amount":10,"type":"credit","category":"x"},
			{"id":"t1","date":"2024-03-02","amount":null,"type":"debit","category":"y"}
		]`))
	})

	txs, err := c.GetTransactions(context.Background(), "c-1")

	var malformed *domain.ErrMalformedTransactions
	if !errors.As(err, &malformed) {
		t.Fatalf("expected ErrMalformedTransactions, got txs=%+v err=%v", txs, err)
	}
	if malformed.Index != 1 || malformed.Field != "amount" {
		t.Errorf("expected amount of row 1, got %+v", malformed)
	}
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Errorf("expected upstream error wrapper, got %v", err)
	}
}
