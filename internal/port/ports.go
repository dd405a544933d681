// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// Scorer is the pre-trained scoring model. Implementations are loaded once
// per process and must be safe for concurrent use.
type Scorer interface {
	Name() string
	Predict(ctx context.Context, vector domain.FeatureVector) (string, error)
}

// AccountFetcher retrieves the current balance and credit score of a customer.
type AccountFetcher interface {
	GetAccount(ctx context.Context, customerID string) (*domain.AccountSummary, error)
}

// TransactionsFetcher retrieves the full transaction history of a customer.
type TransactionsFetcher interface {
	GetTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error)
}

// SnapshotSource is a backend able to serve both halves of a snapshot.
type SnapshotSource interface {
	AccountFetcher
	TransactionsFetcher
}

// SnapshotWriter persists snapshots for later scoring.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, customerID string, snapshot domain.AccountSnapshot) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
