package features

import (
	"slices"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// Row is one line of the windowed ledger: either a transaction or a
// placeholder for a day without any.
type Row struct {
	Date        civil.Date
	Transaction *domain.Transaction
}

// HasTransaction reports whether the row carries a transaction.
func (r Row) HasTransaction() bool {
	return r.Transaction != nil
}

// SignedAmount is +amount for credits, -amount for debits and zero for an
// empty day.
func (r Row) SignedAmount() decimal.Decimal {
	if r.Transaction == nil {
		return decimal.Zero
	}
	if r.Transaction.Type == domain.TransactionCredit {
		return r.Transaction.Amount
	}
	return r.Transaction.Amount.Neg()
}

// Rows flattens the window into ledger rows ordered by (post date, type).
// The sort is stable, so same-day rows of the same type keep input order.
func Rows(w Window) []Row {
	rows := make([]Row, 0, WindowDays+w.Count())
	for _, day := range w.Days {
		if len(day.Transactions) == 0 {
			rows = append(rows, Row{Date: day.Date})
			continue
		}
		for i := range day.Transactions {
			rows = append(rows, Row{Date: day.Date, Transaction: &day.Transactions[i]})
		}
	}

	slices.SortStableFunc(rows, compareRows)
	return rows
}

func compareRows(a, b Row) int {
	switch {
	case a.Date.Before(b.Date):
		return -1
	case a.Date.After(b.Date):
		return 1
	}
	// placeholders sort after transactions of the same day
	switch {
	case a.Transaction == nil && b.Transaction == nil:
		return 0
	case a.Transaction == nil:
		return 1
	case b.Transaction == nil:
		return -1
	}
	switch {
	case a.Transaction.Type < b.Transaction.Type:
		return -1
	case a.Transaction.Type > b.Transaction.Type:
		return 1
	}
	return 0
}

// Point is the reconstructed state after one row.
type Point struct {
	Row        Row
	Cumulative decimal.Decimal
	Balance    decimal.Decimal
}

// Trajectory is the per-row absolute balance across the window.
type Trajectory struct {
	Initial decimal.Decimal
	Points  []Point
}

// Reconstruct folds the signed amounts into a running sum from a zero
// baseline and anchors it to currentBalance: the balance at the last row
// with a transaction equals currentBalance, so the opening balance is
// currentBalance minus the net change over the window.
func Reconstruct(rows []Row, currentBalance decimal.Decimal) Trajectory {
	points := make([]Point, len(rows))
	cum := decimal.Zero
	final := decimal.Zero
	for i, r := range rows {
		cum = cum.Add(r.SignedAmount())
		points[i] = Point{Row: r, Cumulative: cum}
		if r.HasTransaction() {
			final = cum
		}
	}

	initial := currentBalance.Sub(final)
	for i := range points {
		points[i].Balance = points[i].Cumulative.Add(initial)
	}
	return Trajectory{Initial: initial, Points: points}
}

// Max is the highest balance in the trajectory.
func (t Trajectory) Max() decimal.Decimal {
	if len(t.Points) == 0 {
		return t.Initial
	}
	m := t.Points[0].Balance
	for _, p := range t.Points[1:] {
		if p.Balance.GreaterThan(m) {
			m = p.Balance
		}
	}
	return m
}

// Min is the lowest balance in the trajectory.
func (t Trajectory) Min() decimal.Decimal {
	if len(t.Points) == 0 {
		return t.Initial
	}
	m := t.Points[0].Balance
	for _, p := range t.Points[1:] {
		if p.Balance.LessThan(m) {
			m = p.Balance
		}
	}
	return m
}

// Last returns the balance after the final row carrying a transaction.
func (t Trajectory) Last() (decimal.Decimal, bool) {
	for i := len(t.Points) - 1; i >= 0; i-- {
		if t.Points[i].Row.HasTransaction() {
			return t.Points[i].Balance, true
		}
	}
	return decimal.Decimal{}, false
}
