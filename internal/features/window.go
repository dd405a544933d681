package features

import (
	"cloud.google.com/go/civil"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// WindowDays is the length of the trailing window, today included.
const WindowDays = 30

// WindowDay is one calendar day of the window with the transactions posted on it.
type WindowDay struct {
	Date         civil.Date
	Transactions []domain.Transaction
}

// Window is the trailing calendar ending at End, oldest day first.
type Window struct {
	Start civil.Date
	End   civil.Date
	Days  []WindowDay
}

// BuildWindow lays out today-29 … today and joins txs onto it by post date.
// Every day is present even when nothing was posted; out-of-range
// transactions are skipped.
func BuildWindow(today civil.Date, txs []domain.Transaction) Window {
	start := today.AddDays(-(WindowDays - 1))
	days := make([]WindowDay, WindowDays)
	for i := range days {
		days[i].Date = start.AddDays(i)
	}

	for _, tx := range txs {
		if !Contains(start, today, tx.PostDate) {
			continue
		}
		idx := tx.PostDate.DaysSince(start)
		days[idx].Transactions = append(days[idx].Transactions, tx)
	}

	return Window{Start: start, End: today, Days: days}
}

// Contains reports whether d lies in [start, end].
func Contains(start, end, d civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// Count is the number of transactions inside the window.
func (w Window) Count() int {
	n := 0
	for _, d := range w.Days {
		n += len(d.Transactions)
	}
	return n
}

// Empty reports whether no transaction fell inside the window.
func (w Window) Empty() bool {
	return w.Count() == 0
}
