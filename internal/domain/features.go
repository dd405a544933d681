package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NoCategory is emitted as catg_max_debits when the history has no debits.
const NoCategory = "None"

// ============================================================
// Feature record (output)
// ============================================================

// FeatureRecord summarises an account's trailing 30 days. Currency fields
// are rounded to cents and serialise as JSON numbers.
type FeatureRecord struct {
	CurrentBalance decimal.Decimal `json:"current_balance"`
	FICOScore      int             `json:"fico_score"`
	MaxBalL30      decimal.Decimal `json:"max_bal_l30"`
	MinBalL30      decimal.Decimal `json:"min_bal_l30"`
	SumDebitL30    decimal.Decimal `json:"sum_debit_l30"`
	SumCreditL30   decimal.Decimal `json:"sum_credit_l30"`
	CatgMaxDebits  string          `json:"catg_max_debits"`
}

type featureRecordJSON struct {
	CurrentBalance json.Number `json:"current_balance"`
	FICOScore      int         `json:"fico_score"`
	MaxBalL30      json.Number `json:"max_bal_l30"`
	MinBalL30      json.Number `json:"min_bal_l30"`
	SumDebitL30    json.Number `json:"sum_debit_l30"`
	SumCreditL30   json.Number `json:"sum_credit_l30"`
	CatgMaxDebits  string      `json:"catg_max_debits"`
}

// MarshalJSON writes currency fields as bare numbers rather than the
// quoted strings decimal.Decimal produces by default.
func (f FeatureRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(featureRecordJSON{
		CurrentBalance: money(f.CurrentBalance),
		FICOScore:      f.FICOScore,
		MaxBalL30:      money(f.MaxBalL30),
		MinBalL30:      money(f.MinBalL30),
		SumDebitL30:    money(f.SumDebitL30),
		SumCreditL30:   money(f.SumCreditL30),
		CatgMaxDebits:  f.CatgMaxDebits,
	})
}

// UnmarshalJSON accepts both numeric and quoted currency values.
func (f *FeatureRecord) UnmarshalJSON(data []byte) error {
	type plain FeatureRecord
	return json.Unmarshal(data, (*plain)(f))
}

// Vector returns the record in the order the scoring model expects.
func (f FeatureRecord) Vector() FeatureVector {
	return FeatureVector{
		CurrentBalance: f.CurrentBalance,
		MaxBalL30:      f.MaxBalL30,
		MinBalL30:      f.MinBalL30,
		SumDebitL30:    f.SumDebitL30,
		SumCreditL30:   f.SumCreditL30,
		CatgMaxDebits:  f.CatgMaxDebits,
		FICOScore:      f.FICOScore,
	}
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.Round(2).String())
}

// ============================================================
// Feature vector (scorer input)
// ============================================================

// FeatureVector is the ordered model input:
// [current_balance, max_bal_l30, min_bal_l30, sum_debit_l30, sum_credit_l30, catg_max_debits, fico_score].
type FeatureVector struct {
	CurrentBalance decimal.Decimal
	MaxBalL30      decimal.Decimal
	MinBalL30      decimal.Decimal
	SumDebitL30    decimal.Decimal
	SumCreditL30   decimal.Decimal
	CatgMaxDebits  string
	FICOScore      int
}

// Values returns the vector as a positional slice.
func (v FeatureVector) Values() []any {
	return []any{
		money(v.CurrentBalance),
		money(v.MaxBalL30),
		money(v.MinBalL30),
		money(v.SumDebitL30),
		money(v.SumCreditL30),
		v.CatgMaxDebits,
		v.FICOScore,
	}
}

// MarshalJSON encodes the vector as a JSON array.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Values())
}

// Key is a canonical string form, used to memoise scorer output.
func (v FeatureVector) Key() string {
	parts := []string{
		v.CurrentBalance.StringFixed(2),
		v.MaxBalL30.StringFixed(2),
		v.MinBalL30.StringFixed(2),
		v.SumDebitL30.StringFixed(2),
		v.SumCreditL30.StringFixed(2),
		strconv.Quote(v.CatgMaxDebits),
		strconv.Itoa(v.FICOScore),
	}
	return strings.Join(parts, "|")
}

// ============================================================
// Prediction results
// ============================================================

// PredictionResult is returned by the predict endpoints.
type PredictionResult struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id,omitempty"`
	Features   *FeatureRecord `json:"features"`
	Prediction string         `json:"prediction"`
	Model      string         `json:"model"`
	ScoredAt   time.Time      `json:"scored_at"`
}

// BatchRequest wraps several snapshots. Items are decoded individually so a
// malformed snapshot fails alone.
type BatchRequest struct {
	Snapshots []json.RawMessage `json:"snapshots"`
}

// BatchItemResult is the outcome for one snapshot of a batch.
type BatchItemResult struct {
	Index  int               `json:"index"`
	Result *PredictionResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// BatchResponse preserves input order.
type BatchResponse struct {
	Results   []BatchItemResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}
