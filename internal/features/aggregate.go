package features

import (
	"github.com/shopspring/decimal"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// SumByType totals window transaction amounts per direction. A direction
// with no window transactions sums to zero.
func SumByType(w Window) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, day := range w.Days {
		for _, tx := range day.Transactions {
			switch tx.Type {
			case domain.TransactionDebit:
				debit = debit.Add(tx.Amount)
			case domain.TransactionCredit:
				credit = credit.Add(tx.Amount)
			}
		}
	}
	return debit, credit
}

// DominantDebitCategory returns the category of the largest debit in the
// whole history, not only the window. Ties go to the earliest in input
// order. Without debits the result is domain.NoCategory.
func DominantDebitCategory(txs []domain.Transaction) string {
	var (
		best  decimal.Decimal
		catg  = domain.NoCategory
		found bool
	)
	for _, tx := range txs {
		if tx.Type != domain.TransactionDebit {
			continue
		}
		if !found || tx.Amount.GreaterThan(best) {
			best, catg, found = tx.Amount, tx.Category, true
		}
	}
	return catg
}
