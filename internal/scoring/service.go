// internal/scoring/service.go
package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loan-eligibility/internal/advice"
	"loan-eligibility/internal/common/database"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/common/metrics"
	"loan-eligibility/internal/common/observability"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/prediction"
)

const cacheKeyPrefix = "loan:prediction:"

// Result is one scored applicant.
type Result struct {
	Probability    float64 `json:"probability"`
	Interpretation string  `json:"interpretation"`
	Color          string  `json:"color"`
	ModelVariant   string  `json:"modelVariant"`
	SchemaVersion  string  `json:"schemaVersion"`
	Cached         bool    `json:"cached"`
}

// Scored adds the applicant-facing advice and gauge to a Result.
type Scored struct {
	Result
	Advice []string    `json:"advice"`
	Gauge  advice.Gauge `json:"gauge"`
}

// ModelInfo describes one loaded variant.
type ModelInfo struct {
	Variant string         `json:"variant"`
	Default bool           `json:"default"`
	Metrics *ml.Evaluation `json:"metrics,omitempty"`
}

// Catalog is the model listing served to clients.
type Catalog struct {
	SchemaVersion  string      `json:"schemaVersion"`
	DefaultVariant string      `json:"defaultVariant"`
	Features       []string    `json:"features"`
	Models         []ModelInfo `json:"models"`
}

// Service puts a Redis read-through cache, metrics and tracing around the
// predictor. Cache failures are logged and never fail a request.
type Service struct {
	predictor *prediction.Predictor
	cache     *redis.Client
	ttl       time.Duration
	obs       *observability.Observability
	logger    logger.Logger
}

// NewService builds a Service. cache may be nil and a zero ttl disables
// caching.
func NewService(predictor *prediction.Predictor, cache *redis.Client, ttl time.Duration, obs *observability.Observability, log logger.Logger) *Service {
	return &Service{
		predictor: predictor,
		cache:     cache,
		ttl:       ttl,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "scoring"}),
	}
}

// CacheKey identifies a prediction by schema version, variant and the
// normalised applicant, so a retrained bundle never serves stale entries.
func CacheKey(schemaVersion, variant string, applicant models.ApplicantRecord) string {
	data, _ := json.Marshal(applicant.Normalize())
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s%s:%s:%s", cacheKeyPrefix, schemaVersion, variant, hex.EncodeToString(sum[:]))
}

// Predict scores applicant with variant, or the default variant when empty.
func (s *Service) Predict(ctx context.Context, applicant models.ApplicantRecord, variant string) (*Result, error) {
	start := time.Now()
	if variant == "" {
		variant = s.predictor.DefaultVariant()
	}

	ctx, span := s.obs.StartSpan(ctx, "loan.predict",
		attribute.String("model.variant", variant),
		attribute.String("schema.version", s.predictor.SchemaVersion()),
	)
	defer span.End()

	if _, _, err := s.predictor.Bundle().Model(variant); err != nil {
		s.fail(ctx, span, variant, start, err)
		return nil, err
	}

	key := CacheKey(s.predictor.SchemaVersion(), variant, applicant)
	if cached, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		s.succeed(ctx, cached, start)
		return cached, nil
	}

	prob, err := s.predictor.Predict(ctx, applicant, variant)
	if err != nil {
		s.fail(ctx, span, variant, start, err)
		return nil, err
	}

	interpretation, color := advice.Interpret(prob)
	result := &Result{
		Probability:    prob,
		Interpretation: interpretation,
		Color:          color,
		ModelVariant:   variant,
		SchemaVersion:  s.predictor.SchemaVersion(),
	}
	s.store(ctx, key, result)

	span.SetAttributes(attribute.Float64("prediction.probability", prob))
	s.succeed(ctx, result, start)
	return result, nil
}

// Score predicts and then attaches advice and the gauge.
func (s *Service) Score(ctx context.Context, applicant models.ApplicantRecord, variant string) (*Scored, error) {
	result, err := s.Predict(ctx, applicant, variant)
	if err != nil {
		return nil, err
	}
	assessment := advice.Assess(applicant, result.Probability)
	return &Scored{
		Result: *result,
		Advice: assessment.Advice,
		Gauge:  assessment.Gauge,
	}, nil
}

// Models lists the loaded variants with their evaluation reports.
func (s *Service) Models() Catalog {
	bundle := s.predictor.Bundle()
	catalog := Catalog{
		SchemaVersion:  bundle.Schema.Version,
		DefaultVariant: bundle.Manifest.DefaultVariant,
		Features:       bundle.Schema.Features,
	}
	for _, variant := range bundle.Variants() {
		catalog.Models = append(catalog.Models, ModelInfo{
			Variant: variant,
			Default: variant == bundle.Manifest.DefaultVariant,
			Metrics: bundle.Metrics[variant],
		})
	}
	return catalog
}

// SchemaVersion returns the feature schema version being served.
func (s *Service) SchemaVersion() string {
	return s.predictor.SchemaVersion()
}

// Ping reports whether the cache is reachable. A service without a cache is
// always ready.
func (s *Service) Ping(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Ping(ctx).Err(); err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}
	return nil
}

// PurgeStale deletes cached predictions made under any other schema version.
// They can never be hit again once a retrained bundle is served.
func (s *Service) PurgeStale(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	current := cacheKeyPrefix + s.predictor.SchemaVersion() + ":"
	n, err := database.DeleteMatching(ctx, s.cache, cacheKeyPrefix+"*", func(key string) bool {
		return strings.HasPrefix(key, current)
	})
	if err != nil {
		return n, apperrors.NewCacheUnavailableError(err)
	}
	if n > 0 {
		s.logger.Info("purged stale prediction cache entries", map[string]interface{}{"deleted": n})
	}
	return n, nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *Service) lookup(ctx context.Context, key string) (*Result, bool) {
	if !s.cacheEnabled() {
		return nil, false
	}

	val, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.PredictionCache.WithLabelValues("miss").Inc()
		} else {
			metrics.PredictionCache.WithLabelValues("error").Inc()
			s.logger.Warn("prediction cache read failed", map[string]interface{}{
				"error": apperrors.NewCacheUnavailableError(err).Error(),
			})
		}
		return nil, false
	}

	var result Result
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		metrics.PredictionCache.WithLabelValues("error").Inc()
		s.logger.Warn("discarding corrupt cache entry", map[string]interface{}{"key": key})
		return nil, false
	}
	metrics.PredictionCache.WithLabelValues("hit").Inc()
	result.Cached = true
	return &result, true
}

func (s *Service) store(ctx context.Context, key string, result *Result) {
	if !s.cacheEnabled() {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl).Err(); err != nil {
		metrics.PredictionCache.WithLabelValues("error").Inc()
		s.logger.Warn("prediction cache write failed", map[string]interface{}{
			"error": apperrors.NewCacheUnavailableError(err).Error(),
		})
	}
}

func (s *Service) succeed(ctx context.Context, result *Result, start time.Time) {
	metrics.PredictionsTotal.WithLabelValues(result.ModelVariant, result.Interpretation).Inc()
	metrics.PredictionScore.Observe(result.Probability)
	s.obs.RecordPrediction(ctx, "success")
	s.obs.RecordPredictionDuration(ctx, time.Since(start), "success")

	s.logger.Info("prediction served", map[string]interface{}{
		"modelVariant":   result.ModelVariant,
		"probability":    result.Probability,
		"interpretation": result.Interpretation,
		"cached":         result.Cached,
	})
}

func (s *Service) fail(ctx context.Context, span trace.Span, variant string, start time.Time, err error) {
	metrics.PredictionFailures.WithLabelValues(variant).Inc()
	s.obs.RecordPrediction(ctx, "failure")
	s.obs.RecordPredictionDuration(ctx, time.Since(start), "failure")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
