package features_test

import (
	"errors"
	"testing"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/features"
)

func TestDecodeSnapshot_Valid(t *testing.T) {
	body := `{
		"CurrentBalance": 9270.02,
		"FICOScore": 476,
		"Transactions": [
			{"TransactionID": "t-1", "Amount": 127.34, "Category": "XXX-44", "Type": "DEBIT", "PostDate": "2024-03-12"},
			{"Amount": "2048.64", "Category": "Deposits", "Type": "Credit", "PostDate": "2024-02-16T10:00:00Z"}
		]
	}`

	snap, err := features.DecodeSnapshot([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertDecimal(t, "current_balance", snap.CurrentBalance, "9270.02")
	if snap.FICOScore != 476 {
		t.Errorf("expected fico 476, got %d", snap.FICOScore)
	}
	if len(snap.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(snap.Transactions))
	}
	if snap.Transactions[0].Type != domain.TransactionDebit {
		t.Errorf("expected debit, got %s", snap.Transactions[0].Type)
	}
	if snap.Transactions[0].ID != "t-1" {
		t.Errorf("expected id t-1, got %q", snap.Transactions[0].ID)
	}
	if snap.Transactions[1].PostDate.String() != "2024-02-16" {
		t.Errorf("expected 2024-02-16, got %s", snap.Transactions[1].PostDate)
	}
}

func TestDecodeSnapshot_EmptyTransactions(t *testing.T) {
	snap, err := features.DecodeSnapshot([]byte(`{"CurrentBalance": 1, "FICOScore": 2, "Transactions": []}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Transactions) != 0 {
		t.Errorf("expected no transactions, got %d", len(snap.Transactions))
	}
}

func TestDecodeSnapshot_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no balance", `{"FICOScore": 476, "Transactions": []}`, "CurrentBalance"},
		{"null balance", `{"CurrentBalance": null, "FICOScore": 476, "Transactions": []}`, "CurrentBalance"},
		{"no fico", `{"CurrentBalance": 9270.02, "Transactions": []}`, "FICOScore"},
		{"no transactions", `{"CurrentBalance": 9270.02, "FICOScore": 476}`, "Transactions"},
		{"null transactions", `{"CurrentBalance": 9270.02, "FICOScore": 476, "Transactions": null}`, "Transactions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := features.DecodeSnapshot([]byte(tt.body))

			var missing *domain.ErrMissingField
			if !errors.As(err, &missing) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
			if missing.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, missing.Field)
			}
		})
	}
}

func TestDecodeSnapshot_MalformedTransactions(t *testing.T) {
	tests := []struct {
		name  string
		txs   string
		index int
	}{
		{"not a list", `{"Amount": 1}`, -1},
		{"string", `"nope"`, -1},
		{"missing amount", `[{"Category": "A", "Type": "debit", "PostDate": "2024-01-01"}]`, 0},
		{"missing category", `[{"Amount": 1, "Type": "debit", "PostDate": "2024-01-01"}]`, 0},
		{"missing type", `[{"Amount": 1, "Category": "A", "PostDate": "2024-01-01"}]`, 0},
		{"missing date", `[{"Amount": 1, "Category": "A", "Type": "debit"}]`, 0},
		{"bad type", `[{"Amount": 1, "Category": "A", "Type": "refund", "PostDate": "2024-01-01"}]`, 0},
		{"bad date", `[{"Amount": 1, "Category": "A", "Type": "debit", "PostDate": "01/01/2024"}]`, 0},
		{"negative amount", `[{"Amount": -1, "Category": "A", "Type": "debit", "PostDate": "2024-01-01"}]`, 0},
		{"second item", `[{"Amount": 1, "Category": "A", "Type": "debit", "PostDate": "2024-01-01"}, 7]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"CurrentBalance": 10, "FICOScore": 600, "Transactions": ` + tt.txs + `}`
			_, err := features.DecodeSnapshot([]byte(body))

			var malformed *domain.ErrMalformedTransactions
			if !errors.As(err, &malformed) {
				t.Fatalf("expected ErrMalformedTransactions, got %v", err)
			}
			if malformed.Index != tt.index {
				t.Errorf("expected index %d, got %d", tt.index, malformed.Index)
			}
			if !domain.IsInputError(err) {
				t.Error("expected an input error")
			}
		})
	}
}

func TestDecodeSnapshot_InvalidJSON(t *testing.T) {
	_, err := features.DecodeSnapshot([]byte(`{"CurrentBalance": `))

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDecodeSnapshot_FieldsCheckedBeforeTransactions(t *testing.T) {
	_, err := features.DecodeSnapshot([]byte(`{"CurrentBalance": 10, "Transactions": "garbage"}`))

	var missing *domain.ErrMissingField
	if !errors.As(err, &missing) || missing.Field != "FICOScore" {
		t.Fatalf("expected missing FICOScore, got %v", err)
	}
}
