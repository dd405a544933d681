// Package sqlstore keeps account snapshots in a SQL database (Postgres via
// lib/pq or SQLite via mattn/go-sqlite3) and serves them back as a snapshot
// source.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var tracer = otel.Tracer("sqlstore")

// Store implements port.SnapshotSource and port.SnapshotWriter.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database, applies migrations and returns a Store.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := RunMigrations(driver, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Store{db: db, driver: driver}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetAccount returns the stored balance and score for customerID.
func (s *Store) GetAccount(ctx context.Context, customerID string) (*domain.AccountSummary, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	var (
		balance decimal.Decimal
		score   int
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT current_balance, fico_score FROM account_snapshots WHERE customer_id = ?`),
		customerID,
	).Scan(&balance, &score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: customerID}
	}
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "sql/account", Err: err}
	}

	return &domain.AccountSummary{
		CustomerID:     customerID,
		CurrentBalance: balance,
		FICOScore:      score,
	}, nil
}

// GetTransactions returns the stored history in its original input order.
func (s *Store) GetTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.GetTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT transaction_id, amount, category, type, post_date
			FROM account_transactions WHERE customer_id = ? ORDER BY seq`),
		customerID,
	)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "sql/transactions", Err: err}
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx      domain.Transaction
			typ     string
			rawDate any
		)
		if err := rows.Scan(&tx.ID, &tx.Amount, &tx.Category, &typ, &rawDate); err != nil {
			return nil, &domain.ErrExternalService{Service: "sql/transactions", Err: err}
		}
		tx.Type = domain.TransactionType(typ)
		if tx.PostDate, err = scanDate(rawDate); err != nil {
			return nil, &domain.ErrExternalService{Service: "sql/transactions", Err: err}
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ErrExternalService{Service: "sql/transactions", Err: err}
	}
	span.SetAttributes(attribute.Int("transactions.count", len(txs)))
	return txs, nil
}

// SaveSnapshot replaces the stored snapshot for customerID atomically.
// Transactions without an ID get a generated one.
func (s *Store) SaveSnapshot(ctx context.Context, customerID string, snap domain.AccountSnapshot) error {
	ctx, span := tracer.Start(ctx, "SQLStore.SaveSnapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customerID),
		attribute.Int("transactions.count", len(snap.Transactions)),
	)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO account_snapshots (customer_id, current_balance, fico_score, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (customer_id) DO UPDATE SET
				current_balance = excluded.current_balance,
				fico_score = excluded.fico_score,
				updated_at = excluded.updated_at`),
			customerID, snap.CurrentBalance.String(), snap.FICOScore,
		); err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM account_transactions WHERE customer_id = ?`), customerID); err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO account_transactions (customer_id, seq, transaction_id, amount, category, type, post_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range snap.Transactions {
			id := t.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx, customerID, i, id, t.Amount.String(), t.Category, string(t.Type), t.PostDate.String()); err != nil {
				return fmt.Errorf("insert transaction %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "sql/snapshot", Err: err}
	}
	return nil
}

// withTx runs fn in a transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanDate(v any) (civil.Date, error) {
	switch d := v.(type) {
	case time.Time:
		return civil.DateOf(d), nil
	case string:
		return civil.ParseDate(d)
	case []byte:
		return civil.ParseDate(string(d))
	}
	return civil.Date{}, fmt.Errorf("unexpected post_date value %T", v)
}
