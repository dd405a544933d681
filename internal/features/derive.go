// Package features turns an account snapshot into the fixed feature record
// consumed by the scoring model. Everything here is a pure function of its
// inputs; "today" is always passed in by the caller.
package features

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// Derive assembles the feature record for snap as of today.
//
// When no transaction falls inside the window the balance history is flat:
// both extrema equal the current balance and both sums are zero. The
// dominant debit category always looks at the full history.
func Derive(snap domain.AccountSnapshot, today civil.Date) domain.FeatureRecord {
	rec := domain.FeatureRecord{
		CurrentBalance: round(snap.CurrentBalance),
		FICOScore:      snap.FICOScore,
		MaxBalL30:      round(snap.CurrentBalance),
		MinBalL30:      round(snap.CurrentBalance),
		SumDebitL30:    decimal.Zero,
		SumCreditL30:   decimal.Zero,
		CatgMaxDebits:  DominantDebitCategory(snap.Transactions),
	}

	w := BuildWindow(today, snap.Transactions)
	if w.Empty() {
		return rec
	}

	traj := Reconstruct(Rows(w), snap.CurrentBalance)
	debit, credit := SumByType(w)

	rec.MaxBalL30 = round(traj.Max())
	rec.MinBalL30 = round(traj.Min())
	rec.SumDebitL30 = round(debit)
	rec.SumCreditL30 = round(credit)
	return rec
}

// round rounds half away from zero to cents.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
