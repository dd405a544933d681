package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/cache"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/observability"
	"github.com/boddenberg/credit-features-bfa-go/internal/port"
	"github.com/boddenberg/credit-features-bfa-go/internal/service"
)

// --- Mocks ---

type mockScorer struct {
	label string
	err   error
	calls atomic.Int32

	mu   sync.Mutex
	seen []domain.FeatureVector
}

func (m *mockScorer) Name() string { return "mock" }

func (m *mockScorer) Predict(_ context.Context, v domain.FeatureVector) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.seen = append(m.seen, v)
	m.mu.Unlock()
	return m.label, m.err
}

type mockAccounts struct {
	account *domain.AccountSummary
	err     error
}

func (m *mockAccounts) GetAccount(_ context.Context, _ string) (*domain.AccountSummary, error) {
	return m.account, m.err
}

type mockTransactions struct {
	transactions []domain.Transaction
	err          error
}

func (m *mockTransactions) GetTransactions(_ context.Context, _ string) ([]domain.Transaction, error) {
	return m.transactions, m.err
}

type mockWriter struct {
	saved map[string]domain.AccountSnapshot
	err   error
}

func (m *mockWriter) SaveSnapshot(_ context.Context, customerID string, snap domain.AccountSnapshot) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string]domain.AccountSnapshot)
	}
	m.saved[customerID] = snap
	return nil
}

// --- Fixtures ---

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

const mixedSnapshot = `{
	"UserID": "u-1",
	"CurrentBalance": 9270.02,
	"FICOScore": 476,
	"Transactions": [
		{"TransactionID": "1", "Amount": 123.45, "Category": "Entertainment", "Type": "debit", "PostDate": "2024-02-11"},
		{"TransactionID": "2", "Amount": 2048.64, "Category": "Deposits", "Type": "credit", "PostDate": "2024-02-16"},
		{"TransactionID": "3", "Amount": 121.11, "Category": "Deposits", "Type": "credit", "PostDate": "2024-02-16"},
		{"TransactionID": "4", "Amount": 127.34, "Category": "XXX-44", "Type": "debit", "PostDate": "2024-03-12"}
	]
}`

func newService(scorer *mockScorer, opts ...func(*deps)) (*service.Scoring, *observability.Metrics) {
	d := &deps{}
	for _, o := range opts {
		o(d)
	}
	metrics := observability.NewMetrics()
	svc := service.NewScoring(
		scorer,
		d.accounts,
		d.transactions,
		d.writer,
		d.cache,
		metrics,
		zap.NewNop(),
		service.Options{Now: func() time.Time { return fixedNow }, MaxConcurrency: 4, Backend: d.backend},
	)
	return svc, metrics
}

type deps struct {
	accounts     port.AccountFetcher
	transactions port.TransactionsFetcher
	writer       port.SnapshotWriter
	cache        port.Cache[string]
	backend      string
}

func withSource(a *mockAccounts, t *mockTransactions) func(*deps) {
	return func(d *deps) { d.accounts, d.transactions, d.backend = a, t, "http" }
}

func withCache(c *cache.InMemory[string]) func(*deps) {
	return func(d *deps) { d.cache = c }
}

// --- Tests ---

func TestDeriveFeatures_MixedHistory(t *testing.T) {
	svc, _ := newService(&mockScorer{label: "approved"})

	rec, err := svc.DeriveFeatures(context.Background(), []byte(mixedSnapshot))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"current_balance":9270.02,"fico_score":476,"max_bal_l30":9397.36,"min_bal_l30":7227.61,"sum_debit_l30":127.34,"sum_credit_l30":2169.75,"catg_max_debits":"XXX-44"}`
	if string(body) != want {
		t.Errorf("unexpected record\n got: %s\nwant: %s", body, want)
	}
}

func TestDeriveFeatures_UsesConfiguredTimezone(t *testing.T) {
	// 23:30 UTC on the 15th is already the 16th in Tokyo
	now := time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)
	svc := service.NewScoring(&mockScorer{label: "x"}, nil, nil, nil, nil, observability.NewMetrics(), zap.NewNop(),
		service.Options{Location: time.FixedZone("JST", 9*3600), Now: func() time.Time { return now }})

	payload := `{"CurrentBalance": 100, "FICOScore": 700, "Transactions": [
		{"Amount": 10, "Category": "A", "Type": "debit", "PostDate": "2024-02-15"}
	]}`
	rec, err := svc.DeriveFeatures(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// window in JST is 2024-02-16..2024-03-16, so the debit falls outside
	if !rec.SumDebitL30.IsZero() {
		t.Errorf("expected debit outside window, got %s", rec.SumDebitL30)
	}
}

func TestDeriveFeatures_MissingFICOScore(t *testing.T) {
	svc, metrics := newService(&mockScorer{label: "approved"})

	_, err := svc.DeriveFeatures(context.Background(), []byte(`{"CurrentBalance": 1, "Transactions": []}`))

	var missing *domain.ErrMissingField
	if !errors.As(err, &missing) || missing.Field != "FICOScore" {
		t.Fatalf("expected missing FICOScore, got %v", err)
	}
	snap := metrics.GetScoringSnapshot()
	if snap.DerivationFailures["missing_field"] != 1 {
		t.Errorf("expected 1 missing_field failure, got %v", snap.DerivationFailures)
	}
}

func TestPredict_Success(t *testing.T) {
	scorer := &mockScorer{label: "approved"}
	svc, _ := newService(scorer)

	res, err := svc.Predict(context.Background(), []byte(mixedSnapshot))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if res.Prediction != "approved" || res.Model != "mock" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.ID == "" {
		t.Error("expected a prediction id")
	}
	if !res.ScoredAt.Equal(fixedNow) {
		t.Errorf("expected scored_at %v, got %v", fixedNow, res.ScoredAt)
	}

	v := scorer.seen[0]
	if v.CatgMaxDebits != "XXX-44" || v.FICOScore != 476 {
		t.Errorf("unexpected vector %+v", v)
	}
	if !v.MinBalL30.Equal(decimal.RequireFromString("7227.61")) {
		t.Errorf("expected min 7227.61, got %s", v.MinBalL30)
	}
}

func TestPredict_ScorerErrorWrapped(t *testing.T) {
	svc, metrics := newService(&mockScorer{err: &domain.ErrExternalService{Service: "model", Err: errors.New("down")}})

	_, err := svc.Predict(context.Background(), []byte(mixedSnapshot))

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if metrics.GetScoringSnapshot().ExternalErrors["model"] != 1 {
		t.Error("expected model external error to be counted")
	}
}

func TestPredict_CachesByFeatureVector(t *testing.T) {
	scorer := &mockScorer{label: "approved"}
	c := cache.New[string](time.Minute)
	defer c.Close()
	svc, metrics := newService(scorer, withCache(c))

	for i := 0; i < 3; i++ {
		if _, err := svc.Predict(context.Background(), []byte(mixedSnapshot)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	if scorer.calls.Load() != 1 {
		t.Errorf("expected scorer called once, got %d", scorer.calls.Load())
	}
	snap := metrics.GetScoringSnapshot()
	if snap.Predictions["approved"] != 3 {
		t.Errorf("expected 3 approved predictions, got %v", snap.Predictions)
	}
	if snap.CacheHitRate < 0.66 || snap.CacheHitRate > 0.67 {
		t.Errorf("expected hit rate 2/3, got %f", snap.CacheHitRate)
	}
}

func TestPredictBatch_IsolatesFailures(t *testing.T) {
	svc, _ := newService(&mockScorer{label: "approved"})

	payloads := []json.RawMessage{
		json.RawMessage(mixedSnapshot),
		json.RawMessage(`{"CurrentBalance": 1, "Transactions": []}`),
		json.RawMessage(`{"CurrentBalance": 1, "FICOScore": 600, "Transactions": [{"Amount": 1}]}`),
		json.RawMessage(`{"CurrentBalance": 9270.02, "FICOScore": 476, "Transactions": []}`),
	}

	resp := svc.PredictBatch(context.Background(), payloads)

	if len(resp.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(resp.Results))
	}
	if resp.Succeeded != 2 || resp.Failed != 2 {
		t.Errorf("expected 2/2, got %d/%d", resp.Succeeded, resp.Failed)
	}
	for i, r := range resp.Results {
		if r.Index != i {
			t.Errorf("expected index %d, got %d", i, r.Index)
		}
	}
	if resp.Results[1].Error == "" || resp.Results[1].Result != nil {
		t.Errorf("expected item 1 to fail, got %+v", resp.Results[1])
	}
	flat := resp.Results[3].Result.Features
	if !flat.MaxBalL30.Equal(flat.CurrentBalance) || flat.CatgMaxDebits != domain.NoCategory {
		t.Errorf("expected flat history, got %+v", flat)
	}
}

func TestPredictBatch_CountsOneRequest(t *testing.T) {
	svc, metrics := newService(&mockScorer{label: "approved"})

	payloads := []json.RawMessage{
		json.RawMessage(mixedSnapshot),
		json.RawMessage(mixedSnapshot),
		json.RawMessage(`{}`),
	}
	svc.PredictBatch(context.Background(), payloads)

	snap := metrics.GetScoringSnapshot()
	if snap.TotalRequests != 1 || snap.ErrorRate != 0 {
		t.Errorf("expected one successful request, got %+v", snap)
	}
	if snap.Predictions["approved"] != 2 {
		t.Errorf("expected 2 approved predictions, got %v", snap.Predictions)
	}
}

func TestScoreCustomer_Success(t *testing.T) {
	accounts := &mockAccounts{account: &domain.AccountSummary{
		CustomerID:     "c-1",
		CurrentBalance: decimal.RequireFromString("9270.02"),
		FICOScore:      476,
	}}
	transactions := &mockTransactions{transactions: []domain.Transaction{
		{Amount: decimal.RequireFromString("2297.09"), Category: "XXX-33", Type: domain.TransactionDebit, PostDate: civil.Date{Year: 2024, Month: 3, Day: 1}},
	}}
	svc, _ := newService(&mockScorer{label: "declined"}, withSource(accounts, transactions))

	res, err := svc.ScoreCustomer(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if res.CustomerID != "c-1" || res.Prediction != "declined" {
		t.Errorf("unexpected result %+v", res)
	}
	if !res.Features.MaxBalL30.Equal(decimal.RequireFromString("11567.11")) {
		t.Errorf("expected max 11567.11, got %s", res.Features.MaxBalL30)
	}
}

func TestScoreCustomer_FetchError(t *testing.T) {
	accounts := &mockAccounts{err: &domain.ErrNotFound{Resource: "account", ID: "c-1"}}
	svc, _ := newService(&mockScorer{label: "x"}, withSource(accounts, &mockTransactions{}))

	_, err := svc.ScoreCustomer(context.Background(), "c-1")

	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScoreCustomer_NoBackend(t *testing.T) {
	svc, _ := newService(&mockScorer{label: "x"})

	_, err := svc.ScoreCustomer(context.Background(), "c-1")

	var unavailable *domain.ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestScoreCustomer_CancelledContext(t *testing.T) {
	svc, _ := newService(&mockScorer{label: "x"}, withSource(&mockAccounts{}, &mockTransactions{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.ScoreCustomer(ctx, "c-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSaveSnapshot(t *testing.T) {
	writer := &mockWriter{}
	svc, _ := newService(&mockScorer{label: "x"}, withSource(&mockAccounts{}, &mockTransactions{}), func(d *deps) {
		d.writer = writer
		d.backend = "sql"
	})

	if err := svc.SaveSnapshot(context.Background(), "c-1", []byte(mixedSnapshot)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(writer.saved["c-1"].Transactions) != 4 {
		t.Errorf("expected 4 stored transactions, got %d", len(writer.saved["c-1"].Transactions))
	}

	err := svc.SaveSnapshot(context.Background(), "c-1", []byte(`{"FICOScore": 1}`))
	var missing *domain.ErrMissingField
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestSaveSnapshot_ReadOnlyBackend(t *testing.T) {
	svc, _ := newService(&mockScorer{label: "x"}, withSource(&mockAccounts{}, &mockTransactions{}))

	err := svc.SaveSnapshot(context.Background(), "c-1", []byte(mixedSnapshot))

	var ro *domain.ErrReadOnly
	if !errors.As(err, &ro) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	svc, _ := newService(&mockScorer{label: "x"})

	h := svc.Health(context.Background())

	if h.Status != "healthy" {
		t.Errorf("expected healthy, got %s", h.Status)
	}
	if h.Services[1].Status != "disabled" {
		t.Errorf("expected disabled snapshot source, got %s", h.Services[1].Status)
	}
}
