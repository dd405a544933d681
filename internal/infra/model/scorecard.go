// Package model provides the in-process scoring model: a logistic scorecard
// loaded once from a TOML file and read-only afterwards.
package model

import (
	"context"
	"fmt"
	"math"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

var tracer = otel.Tracer("model")

// Weights are the per-feature coefficients applied to the numeric features.
type Weights struct {
	CurrentBalance float64 `toml:"current_balance"`
	MaxBalL30      float64 `toml:"max_bal_l30"`
	MinBalL30      float64 `toml:"min_bal_l30"`
	SumDebitL30    float64 `toml:"sum_debit_l30"`
	SumCreditL30   float64 `toml:"sum_credit_l30"`
	FICOScore      float64 `toml:"fico_score"`
}

// Scorecard is a logistic model over the feature vector.
type Scorecard struct {
	ModelName             string             `toml:"name"`
	Version               string             `toml:"version"`
	Intercept             float64            `toml:"intercept"`
	Threshold             float64            `toml:"threshold"`
	PositiveLabel         string             `toml:"positive_label"`
	NegativeLabel         string             `toml:"negative_label"`
	DefaultCategoryWeight float64            `toml:"default_category_weight"`
	Weights               Weights            `toml:"weights"`
	CategoryWeights       map[string]float64 `toml:"category_weights"`
}

// Load reads and validates a scorecard file.
func Load(path string) (*Scorecard, error) {
	var sc Scorecard
	if _, err := toml.DecodeFile(path, &sc); err != nil {
		return nil, fmt.Errorf("loading scorecard %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scorecard %s: %w", path, err)
	}
	return &sc, nil
}

// Parse decodes a scorecard from TOML text.
func Parse(data string) (*Scorecard, error) {
	var sc Scorecard
	if _, err := toml.Decode(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scorecard: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Scorecard) validate() error {
	if s.Threshold <= 0 || s.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %v", s.Threshold)
	}
	if s.PositiveLabel == "" || s.NegativeLabel == "" {
		return fmt.Errorf("positive_label and negative_label are required")
	}
	if s.ModelName == "" {
		s.ModelName = "scorecard"
	}
	return nil
}

// Name identifies the model in prediction results.
func (s *Scorecard) Name() string {
	if s.Version == "" {
		return s.ModelName
	}
	return s.ModelName + "@" + s.Version
}

// Probability returns the logistic score of v.
func (s *Scorecard) Probability(v domain.FeatureVector) float64 {
	w := s.Weights
	z := s.Intercept +
		w.CurrentBalance*v.CurrentBalance.InexactFloat64() +
		w.MaxBalL30*v.MaxBalL30.InexactFloat64() +
		w.MinBalL30*v.MinBalL30.InexactFloat64() +
		w.SumDebitL30*v.SumDebitL30.InexactFloat64() +
		w.SumCreditL30*v.SumCreditL30.InexactFloat64() +
		w.FICOScore*float64(v.FICOScore)

	if cw, ok := s.CategoryWeights[v.CatgMaxDebits]; ok {
		z += cw
	} else {
		z += s.DefaultCategoryWeight
	}
	return 1 / (1 + math.Exp(-z))
}

// Predict labels v as positive when its probability reaches the threshold.
func (s *Scorecard) Predict(ctx context.Context, v domain.FeatureVector) (string, error) {
	_, span := tracer.Start(ctx, "Scorecard.Predict")
	defer span.End()

	p := s.Probability(v)
	label := s.NegativeLabel
	if p >= s.Threshold {
		label = s.PositiveLabel
	}

	span.SetAttributes(
		attribute.Float64("prediction.probability", p),
		attribute.String("prediction.label", label),
	)
	return label, nil
}
