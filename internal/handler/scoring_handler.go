package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/service"
)

const maxBatchSize = 500

// ============================================================
// POST /v1/features
// ============================================================

func featuresHandler(svc *service.Scoring, limit int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/features")
		defer span.End()

		body, err := readBody(w, r, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rec, err := svc.DeriveFeatures(ctx, body)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// ============================================================
// POST /v1/predict
// ============================================================

func predictHandler(svc *service.Scoring, limit int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/predict")
		defer span.End()

		body, err := readBody(w, r, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.Predict(ctx, body)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("prediction.label", res.Prediction))
		writeJSON(w, http.StatusOK, res)
	}
}

// ============================================================
// POST /v1/predict/batch
// ============================================================

func predictBatchHandler(svc *service.Scoring, limit int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/predict/batch")
		defer span.End()

		body, err := readBody(w, r, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req domain.BatchRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Snapshots == nil {
			writeError(w, http.StatusBadRequest, "snapshots is required")
			return
		}
		if len(req.Snapshots) > maxBatchSize {
			writeError(w, http.StatusBadRequest, "too many snapshots in batch")
			return
		}

		writeJSON(w, http.StatusOK, svc.PredictBatch(ctx, req.Snapshots))
	}
}

// ============================================================
// GET /v1/customers/{customerId}/score
// ============================================================

func scoreCustomerHandler(svc *service.Scoring, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{customerId}/score")
		defer span.End()

		customerID := chi.URLParam(r, "customerId")
		span.SetAttributes(attribute.String("customer.id", customerID))

		res, err := svc.ScoreCustomer(ctx, customerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ============================================================
// PUT /v1/customers/{customerId}/snapshot
// ============================================================

func saveSnapshotHandler(svc *service.Scoring, limit int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/customers/{customerId}/snapshot")
		defer span.End()

		customerID := chi.URLParam(r, "customerId")
		span.SetAttributes(attribute.String("customer.id", customerID))

		body, err := readBody(w, r, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := svc.SaveSnapshot(ctx, customerID, body); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("snapshot stored",
			zap.String("customer_id", customerID),
			zap.String("subject", SubjectFromContext(ctx)),
		)
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "snapshot stored", ID: customerID})
	}
}
