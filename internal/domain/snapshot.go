package domain

import (
	"encoding/json"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ============================================================
// Account snapshot (input)
// ============================================================

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// ParseTransactionType resolves a case-insensitive type label.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch t := TransactionType(strings.ToLower(s)); t {
	case TransactionCredit, TransactionDebit:
		return t, true
	}
	return "", false
}

// Transaction is one posted transaction. Amount is a non-negative magnitude;
// the direction lives in Type. ID is carried for storage only.
type Transaction struct {
	ID       string
	Amount   decimal.Decimal
	Category string
	Type     TransactionType
	PostDate civil.Date
}

// AccountSnapshot is the state of one account at evaluation time.
type AccountSnapshot struct {
	CurrentBalance decimal.Decimal
	FICOScore      int
	Transactions   []Transaction
}

// AccountSummary is the non-transactional half of a snapshot, as returned
// by snapshot sources.
type AccountSummary struct {
	CustomerID     string          `json:"customer_id"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	FICOScore      int             `json:"fico_score"`
}

// ============================================================
// Wire format
// ============================================================

// SnapshotRequest is the JSON body accepted by the scoring endpoints.
// Pointer fields distinguish an absent or null key from a zero value.
type SnapshotRequest struct {
	UserID         string           `json:"UserID,omitempty"`
	CurrentBalance *decimal.Decimal `json:"CurrentBalance"`
	FICOScore      *int             `json:"FICOScore"`
	Transactions   json.RawMessage  `json:"Transactions"`
}

// TransactionRequest is one element of SnapshotRequest.Transactions.
type TransactionRequest struct {
	TransactionID string           `json:"TransactionID,omitempty"`
	Amount        *decimal.Decimal `json:"Amount"`
	Category      *string          `json:"Category"`
	Type          *string          `json:"Type"`
	PostDate      *string          `json:"PostDate"`
}
