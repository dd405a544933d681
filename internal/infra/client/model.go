package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/resilience"
)

// ModelClient calls a remote model server that hosts the scoring pipeline.
type ModelClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
}

// NewModelClient creates a new ModelClient. Concurrent calls are capped at
// cfg.MaxConcurrency.
func NewModelClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ModelClient {
	return &ModelClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
	}
}

type predictRequest struct {
	Features domain.FeatureVector `json:"features"`
}

type predictResponse struct {
	Label string `json:"label"`
}

// Name identifies the backend in prediction results.
func (c *ModelClient) Name() string {
	return "remote"
}

// Predict sends the ordered feature vector and returns the model's label.
func (c *ModelClient) Predict(ctx context.Context, vector domain.FeatureVector) (string, error) {
	ctx, span := tracer.Start(ctx, "ModelClient.Predict")
	defer span.End()

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return "", &domain.ErrTimeout{Operation: "model"}
	}
	defer c.bulkhead.Release()

	body, err := json.Marshal(predictRequest{Features: vector})
	if err != nil {
		return "", err
	}

	label, err := resilience.Call(ctx, c.cb, c.cfg, "model", func() (string, error) {
		endpoint := fmt.Sprintf("%s/v1/models/predict", c.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", resilience.Permanent(&domain.ErrExternalService{
				Service: "model",
				Err:     fmt.Errorf("model API rejected features with status %d", resp.StatusCode),
			})
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("model API returned status %d", resp.StatusCode)
		}

		var out predictResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", err
		}
		if out.Label == "" {
			return "", resilience.Permanent(&domain.ErrExternalService{Service: "model", Err: errors.New("empty label")})
		}
		return out.Label, nil
	})
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("prediction.label", label))
	return label, nil
}
