package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/features"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/observability"
	"github.com/boddenberg/credit-features-bfa-go/internal/port"
)

var tracer = otel.Tracer("service/scoring")

// Options tune a Scoring service. Zero values fall back to UTC, time.Now,
// a batch fan-out of 8 and an unnamed read-only backend.
type Options struct {
	Location       *time.Location
	Now            func() time.Time
	MaxConcurrency int
	Backend        string
}

// Scoring derives feature records from account snapshots and scores them.
// The scorer is shared read-only; every call works on its own snapshot.
type Scoring struct {
	scorer       port.Scorer
	accounts     port.AccountFetcher
	transactions port.TransactionsFetcher
	writer       port.SnapshotWriter
	cache        port.Cache[string]
	metrics      *observability.Metrics
	logger       *zap.Logger

	loc            *time.Location
	now            func() time.Time
	maxConcurrency int
	backend        string
}

// NewScoring creates the scoring service with all dependencies injected.
// accounts, transactions and writer may be nil when no snapshot backend is
// configured; cache may be nil to disable memoisation.
func NewScoring(
	scorer port.Scorer,
	accounts port.AccountFetcher,
	transactions port.TransactionsFetcher,
	writer port.SnapshotWriter,
	cache port.Cache[string],
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) *Scoring {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.Backend == "" {
		opts.Backend = "none"
	}
	return &Scoring{
		scorer:         scorer,
		accounts:       accounts,
		transactions:   transactions,
		writer:         writer,
		cache:          cache,
		metrics:        metrics,
		logger:         logger,
		loc:            opts.Location,
		now:            opts.Now,
		maxConcurrency: opts.MaxConcurrency,
		backend:        opts.Backend,
	}
}

// ModelName reports the configured scorer.
func (s *Scoring) ModelName() string {
	return s.scorer.Name()
}

// Backend reports the configured snapshot backend.
func (s *Scoring) Backend() string {
	return s.backend
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports the scorer and the snapshot source. A source that can be
// pinged and fails is reported as degraded.
func (s *Scoring) Health(ctx context.Context) domain.HealthStatus {
	services := []domain.ServiceHealth{
		{Name: "scorer", Backend: s.ModelName(), Status: "healthy"},
	}

	source := domain.ServiceHealth{Name: "snapshot_source", Backend: s.Backend(), Status: "disabled"}
	if s.accounts != nil {
		source.Status = "healthy"
		if p, ok := s.accounts.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				s.logger.Warn("snapshot source ping failed", zap.Error(err))
				source.Status = "degraded"
			}
		}
	}
	services = append(services, source)

	status := "healthy"
	for _, svc := range services {
		if svc.Status == "degraded" {
			status = "degraded"
		}
	}
	return domain.HealthStatus{Status: status, Services: services}
}

// Derive computes the feature record for snap. "today" is read once, in
// the configured location, before any work starts.
func (s *Scoring) Derive(ctx context.Context, snap domain.AccountSnapshot) domain.FeatureRecord {
	_, span := tracer.Start(ctx, "Scoring.Derive")
	defer span.End()

	start := time.Now()
	today := features.Today(s.now(), s.loc)
	rec := features.Derive(snap, today)
	s.metrics.RecordDerivation(time.Since(start))

	span.SetAttributes(
		attribute.String("window.today", today.String()),
		attribute.Int("transactions.count", len(snap.Transactions)),
	)
	return rec
}

// DeriveFeatures decodes a snapshot payload and returns its feature record.
func (s *Scoring) DeriveFeatures(ctx context.Context, payload []byte) (rec *domain.FeatureRecord, err error) {
	ctx, span := tracer.Start(ctx, "Scoring.DeriveFeatures")
	defer span.End()
	defer s.observe("features", time.Now(), &err)

	snap, err := s.decode(payload)
	if err != nil {
		return nil, err
	}
	r := s.Derive(ctx, snap)
	return &r, nil
}

// Predict decodes a snapshot payload, derives its features and scores them.
func (s *Scoring) Predict(ctx context.Context, payload []byte) (res *domain.PredictionResult, err error) {
	ctx, span := tracer.Start(ctx, "Scoring.Predict")
	defer span.End()
	defer s.observe("predict", time.Now(), &err)

	return s.predict(ctx, payload)
}

func (s *Scoring) predict(ctx context.Context, payload []byte) (*domain.PredictionResult, error) {
	snap, err := s.decode(payload)
	if err != nil {
		return nil, err
	}
	return s.predictSnapshot(ctx, "", snap)
}

// PredictBatch scores every payload independently. A failing item is
// reported in its own slot and never affects the others; results keep
// input order. The batch counts as a single request.
func (s *Scoring) PredictBatch(ctx context.Context, payloads []json.RawMessage) *domain.BatchResponse {
	ctx, span := tracer.Start(ctx, "Scoring.PredictBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(payloads)))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("predict_batch", time.Since(start))
		s.metrics.IncrRequest("success")
	}()

	results := make([]domain.BatchItemResult, len(payloads))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for i, payload := range payloads {
		i, payload := i, payload
		g.Go(func() error {
			res, err := s.predict(ctx, payload)
			results[i] = domain.BatchItemResult{Index: i, Result: res}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := &domain.BatchResponse{Results: results}
	for _, r := range results {
		if r.Error != "" {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", resp.Failed))
	return resp
}

// ScoreCustomer loads the customer's snapshot from the configured backend,
// fetching the account summary and the transaction history concurrently.
func (s *Scoring) ScoreCustomer(ctx context.Context, customerID string) (res *domain.PredictionResult, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Scoring.ScoreCustomer")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))
	defer s.observe("score_customer", time.Now(), &err)

	if strings.TrimSpace(customerID) == "" {
		return nil, &domain.ErrValidation{Field: "customerId", Message: "must not be empty"}
	}
	if s.accounts == nil || s.transactions == nil {
		return nil, &domain.ErrUnavailable{Capability: "customer scoring"}
	}

	var (
		account      *domain.AccountSummary
		transactions []domain.Transaction
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a, err := s.accounts.GetAccount(gCtx, customerID)
		if err != nil {
			s.fetchFailed("account", customerID, err)
			return fmt.Errorf("account fetch: %w", err)
		}
		account = a
		return nil
	})

	g.Go(func() error {
		t, err := s.transactions.GetTransactions(gCtx, customerID)
		if err != nil {
			s.fetchFailed("transactions", customerID, err)
			return fmt.Errorf("transactions fetch: %w", err)
		}
		transactions = t
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := domain.AccountSnapshot{
		CurrentBalance: account.CurrentBalance,
		FICOScore:      account.FICOScore,
		Transactions:   transactions,
	}
	return s.predictSnapshot(ctx, customerID, snap)
}

// SaveSnapshot validates payload and stores it for customerID.
func (s *Scoring) SaveSnapshot(ctx context.Context, customerID string, payload []byte) (err error) {
	ctx, span := tracer.Start(ctx, "Scoring.SaveSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	if strings.TrimSpace(customerID) == "" {
		return &domain.ErrValidation{Field: "customerId", Message: "must not be empty"}
	}
	if s.writer == nil {
		if s.accounts == nil {
			return &domain.ErrUnavailable{Capability: "snapshot storage"}
		}
		return &domain.ErrReadOnly{Backend: s.backend}
	}

	snap, err := s.decode(payload)
	if err != nil {
		return err
	}

	if err := s.writer.SaveSnapshot(ctx, customerID, snap); err != nil {
		s.fetchFailed("snapshot_store", customerID, err)
		return fmt.Errorf("snapshot save: %w", err)
	}

	s.logger.Info("snapshot stored",
		zap.String("customer_id", customerID),
		zap.Int("transactions", len(snap.Transactions)),
	)
	return nil
}

// decode parses payload and counts rejections by kind.
func (s *Scoring) decode(payload []byte) (domain.AccountSnapshot, error) {
	snap, err := features.DecodeSnapshot(payload)
	if err != nil {
		kind := failureKind(err)
		s.metrics.IncrDerivationFailure(kind)
		s.logger.Debug("snapshot rejected",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return domain.AccountSnapshot{}, err
	}
	return snap, nil
}

func (s *Scoring) predictSnapshot(ctx context.Context, customerID string, snap domain.AccountSnapshot) (*domain.PredictionResult, error) {
	rec := s.Derive(ctx, snap)

	label, err := s.score(ctx, rec.Vector())
	if err != nil {
		s.logger.Error("scoring failed",
			zap.String("customer_id", customerID),
			zap.String("model", s.scorer.Name()),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("model")
		return nil, fmt.Errorf("model predict: %w", err)
	}

	return &domain.PredictionResult{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Features:   &rec,
		Prediction: label,
		Model:      s.scorer.Name(),
		ScoredAt:   s.now().UTC(),
	}, nil
}

// score memoises scorer output per feature vector.
func (s *Scoring) score(ctx context.Context, vector domain.FeatureVector) (string, error) {
	key := vector.Key()
	if s.cache != nil {
		if label, ok := s.cache.Get(key); ok {
			s.metrics.IncrCacheHit("prediction")
			s.metrics.IncrPrediction(label)
			return label, nil
		}
		s.metrics.IncrCacheMiss("prediction")
	}

	start := time.Now()
	label, err := s.scorer.Predict(ctx, vector)
	s.metrics.RecordRequestDuration("model", time.Since(start))
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		s.cache.Set(key, label)
	}
	s.metrics.IncrPrediction(label)
	return label, nil
}

func (s *Scoring) fetchFailed(service, customerID string, err error) {
	s.logger.Error("failed to fetch "+service,
		zap.String("customer_id", customerID),
		zap.Error(err),
	)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		s.metrics.IncrExternalError(service)
	}
}

// observe records duration and outcome of a top-level operation.
func (s *Scoring) observe(operation string, start time.Time, errp *error) {
	s.metrics.RecordRequestDuration(operation, time.Since(start))
	if *errp != nil {
		s.metrics.IncrRequest("error")
		return
	}
	s.metrics.IncrRequest("success")
}

func failureKind(err error) string {
	var (
		missing   *domain.ErrMissingField
		malformed *domain.ErrMalformedTransactions
	)
	switch {
	case errors.As(err, &missing):
		return "missing_field"
	case errors.As(err, &malformed):
		return "malformed_transactions"
	default:
		return "invalid_body"
	}
}
