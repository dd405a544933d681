package features

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// DecodeSnapshot parses a JSON snapshot body and validates it.
func DecodeSnapshot(data []byte) (domain.AccountSnapshot, error) {
	var req domain.SnapshotRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.AccountSnapshot{}, &domain.ErrValidation{Field: "body", Message: err.Error()}
	}
	return ParseSnapshot(req)
}

// ParseSnapshot validates a decoded request and converts it to a snapshot.
// Required top-level fields are checked before any transaction is looked at.
func ParseSnapshot(req domain.SnapshotRequest) (domain.AccountSnapshot, error) {
	if req.CurrentBalance == nil {
		return domain.AccountSnapshot{}, &domain.ErrMissingField{Field: "CurrentBalance"}
	}
	if req.FICOScore == nil {
		return domain.AccountSnapshot{}, &domain.ErrMissingField{Field: "FICOScore"}
	}
	if isNull(req.Transactions) {
		return domain.AccountSnapshot{}, &domain.ErrMissingField{Field: "Transactions"}
	}

	txs, err := ParseTransactions(req.Transactions)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	return domain.AccountSnapshot{
		CurrentBalance: *req.CurrentBalance,
		FICOScore:      *req.FICOScore,
		Transactions:   txs,
	}, nil
}

// ParseTransactions converts a JSON list of wire transactions. The first
// bad record fails the whole list.
func ParseTransactions(raw json.RawMessage) ([]domain.Transaction, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &domain.ErrMalformedTransactions{Index: -1, Reason: "expected a list of transactions"}
	}

	txs := make([]domain.Transaction, 0, len(items))
	for i, item := range items {
		tx, err := parseTransaction(i, item)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parseTransaction(i int, raw json.RawMessage) (domain.Transaction, error) {
	var tr domain.TransactionRequest
	if err := json.Unmarshal(raw, &tr); err != nil {
		return domain.Transaction{}, &domain.ErrMalformedTransactions{Index: i, Reason: err.Error()}
	}

	switch {
	case tr.Amount == nil:
		return domain.Transaction{}, missing(i, "Amount")
	case tr.Category == nil:
		return domain.Transaction{}, missing(i, "Category")
	case tr.Type == nil:
		return domain.Transaction{}, missing(i, "Type")
	case tr.PostDate == nil:
		return domain.Transaction{}, missing(i, "PostDate")
	}

	if tr.Amount.IsNegative() {
		return domain.Transaction{}, &domain.ErrMalformedTransactions{Index: i, Field: "Amount", Reason: "amount must be a non-negative magnitude"}
	}
	typ, ok := domain.ParseTransactionType(*tr.Type)
	if !ok {
		return domain.Transaction{}, &domain.ErrMalformedTransactions{
			Index:  i,
			Field:  "Type",
			Reason: fmt.Sprintf("unknown transaction type %q", *tr.Type),
		}
	}
	postDate, err := ParsePostDate(*tr.PostDate)
	if err != nil {
		return domain.Transaction{}, &domain.ErrMalformedTransactions{Index: i, Field: "PostDate", Reason: err.Error()}
	}

	return domain.Transaction{
		ID:       tr.TransactionID,
		Amount:   *tr.Amount,
		Category: *tr.Category,
		Type:     typ,
		PostDate: postDate,
	}, nil
}

func missing(i int, field string) error {
	return &domain.ErrMalformedTransactions{Index: i, Field: field, Reason: "field is required"}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
