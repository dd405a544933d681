package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth describes one configured collaborator.
type ServiceHealth struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	Status  string `json:"status"`
}

// ScoringMetrics is returned by GET /v1/metrics/scoring.
type ScoringMetrics struct {
	TotalRequests      int64            `json:"totalRequests"`
	ErrorRate          float64          `json:"errorRate"`
	DerivationFailures map[string]int64 `json:"derivationFailures"`
	Predictions        map[string]int64 `json:"predictions"`
	CacheHitRate       float64          `json:"cacheHitRate"`
	ExternalErrors     map[string]int64 `json:"externalErrors"`
	AvgDerivationMs    float64          `json:"avgDerivationMs"`
	Period             string           `json:"period"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
