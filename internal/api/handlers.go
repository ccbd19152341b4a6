// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/common/validation"
	"loan-eligibility/internal/history"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/scoring"
)

const maxBodyBytes = 1 << 20

// Scorer is what the API needs from the scoring service.
type Scorer interface {
	Score(ctx context.Context, applicant models.ApplicantRecord, variant string) (*scoring.Scored, error)
	Models() scoring.Catalog
	Ping(ctx context.Context) error
}

// RecordReader reads recorded predictions from the system of record.
type RecordReader interface {
	Get(ctx context.Context, id string) (*models.PredictionRecord, error)
	List(ctx context.Context, filter history.Filter) ([]models.PredictionRecord, error)
}

// RecordSearcher queries the prediction search index.
type RecordSearcher interface {
	Search(ctx context.Context, q history.Query) (*history.SearchResult, error)
}

type Handler struct {
	scorer    Scorer
	records   RecordReader
	search    RecordSearcher
	applicant *validation.SchemaValidator
	logger    logger.Logger
}

func NewHandler(scorer Scorer, log logger.Logger) (*Handler, error) {
	applicant, err := validation.NewSchemaValidator(validation.ApplicantSchema())
	if err != nil {
		return nil, err
	}
	return &Handler{
		scorer:    scorer,
		applicant: applicant,
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
	}, nil
}

// WithHistory enables the prediction history routes. Either argument may be
// nil, which leaves its routes unregistered.
func (h *Handler) WithHistory(records RecordReader, search RecordSearcher) *Handler {
	h.records = records
	h.search = search
	return h
}

// PredictionRequest is the body of POST /api/v1/predictions.
type PredictionRequest struct {
	Applicant    json.RawMessage `json:"applicant"`
	ModelVariant string          `json:"modelVariant,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error            string                       `json:"error"`
	Message          string                       `json:"message"`
	Details          string                       `json:"details,omitempty"`
	ValidationErrors []validation.ValidationError `json:"validationErrors,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports 503 while a configured cache is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.scorer.Ping(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scorer.Models())
}

func (h *Handler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: "request body must be a JSON object",
			Details: err.Error(),
		})
		return
	}
	if len(req.Applicant) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   string(apperrors.ErrCodeApplicationInvalid),
			Message: "applicant is required",
		})
		return
	}

	applicant, result := validation.ValidateApplicantDocument(req.Applicant, h.applicant)
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            string(apperrors.ErrCodeApplicationInvalid),
			Message:          "loan application validation failed",
			ValidationErrors: result.Errors,
		})
		return
	}

	scored, err := h.scorer.Score(r.Context(), *applicant, req.ModelVariant)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scored)
}

// RecordList is the body of GET /api/v1/predictions.
type RecordList struct {
	Records []models.PredictionRecord `json:"records"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), history.DefaultLimit)
	if err != nil {
		writeBadParam(w, "limit", err)
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeBadParam(w, "offset", err)
		return
	}
	filter := history.Filter{
		ModelVariant:   q.Get("modelVariant"),
		Interpretation: q.Get("interpretation"),
		Limit:          limit,
		Offset:         offset,
	}

	records, err := h.records.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordList{Records: records, Limit: limit, Offset: offset})
}

func (h *Handler) SearchPredictions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := history.Query{
		Interpretation: params.Get("interpretation"),
		ModelVariant:   params.Get("modelVariant"),
	}
	var err error
	if query.From, err = intParam(params.Get("from"), 0); err != nil {
		writeBadParam(w, "from", err)
		return
	}
	if query.Size, err = intParam(params.Get("size"), history.DefaultLimit); err != nil {
		writeBadParam(w, "size", err)
		return
	}
	if query.MinProbability, err = floatParam(params.Get("minProbability")); err != nil {
		writeBadParam(w, "minProbability", err)
		return
	}
	if query.MaxProbability, err = floatParam(params.Get("maxProbability")); err != nil {
		writeBadParam(w, "maxProbability", err)
		return
	}

	result, err := h.search.Search(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func floatParam(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 100 {
		return nil, fmt.Errorf("must be a number between 0 and 100, got %q", raw)
	}
	return &f, nil
}

func writeBadParam(w http.ResponseWriter, name string, err error) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "INVALID_REQUEST",
		Message: fmt.Sprintf("invalid query parameter %s", name),
		Details: err.Error(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	status := statusFor(stdErr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"error":     err.Error(),
		})
	}
	writeJSON(w, status, ErrorResponse{
		Error:   string(stdErr.Code),
		Message: stdErr.Message,
		Details: stdErr.Details,
	})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeApplicationInvalid, apperrors.ErrCodeModelVariantNotFound:
		return http.StatusBadRequest
	case apperrors.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodePredictionFailed:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeCacheUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
