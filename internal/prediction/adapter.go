// internal/prediction/adapter.go
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"loan-eligibility/internal/artifacts"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
)

// EncodingMode selects how a single applicant is one-hot encoded.
type EncodingMode string

const (
	// ModeDomains encodes the applicant alone against the fixed domains.
	ModeDomains EncodingMode = "domains"
	// ModeReference encodes the applicant jointly with the reference table
	// and picks its row back out by key.
	ModeReference EncodingMode = "reference"
)

// ParseEncodingMode maps a config value to a mode. Empty means domains.
func ParseEncodingMode(s string) (EncodingMode, error) {
	switch EncodingMode(s) {
	case "", ModeDomains:
		return ModeDomains, nil
	case ModeReference:
		return ModeReference, nil
	}
	return "", fmt.Errorf("unknown encoding mode %q", s)
}

type Options struct {
	Mode   EncodingMode
	Strict bool
	// FillValues fills fields a domains-mode applicant leaves empty.
	// NewPredictor takes them from the bundle manifest when nil.
	FillValues map[string]string
}

func DefaultOptions() Options {
	return Options{Mode: ModeDomains, Strict: true}
}

// Predictor scores applicants against a loaded artifact bundle.
type Predictor struct {
	bundle *artifacts.Bundle
	opts   Options
	logger logger.Logger
}

// NewPredictor checks that every model, the scaler and the feature schema
// agree on one schema version before any request is served.
func NewPredictor(bundle *artifacts.Bundle, opts Options, log logger.Logger) (*Predictor, error) {
	if opts.Mode == "" {
		opts.Mode = ModeDomains
	}
	if opts.FillValues == nil {
		opts.FillValues = bundle.Manifest.FillValues
	}
	if opts.Mode == ModeReference && bundle.Reference == nil {
		return nil, apperrors.NewArtifactLoadError("reference_data",
			errors.New("reference encoding requires the processed reference dataset"))
	}
	for _, variant := range bundle.Variants() {
		if err := CheckVersions(bundle.Models[variant], bundle.Scaler, bundle.Schema); err != nil {
			return nil, apperrors.NewArtifactLoadError(artifacts.ModelFile(variant), err)
		}
	}

	return &Predictor{
		bundle: bundle,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "predictor"}),
	}, nil
}

// Bundle returns the artifacts the predictor serves.
func (p *Predictor) Bundle() *artifacts.Bundle {
	return p.bundle
}

// SchemaVersion returns the feature schema version of the loaded bundle.
func (p *Predictor) SchemaVersion() string {
	return p.bundle.Schema.Version
}

// DefaultVariant returns the variant used when a request names none.
func (p *Predictor) DefaultVariant() string {
	return p.bundle.Manifest.DefaultVariant
}

// Predict returns the approval probability in [0,100] for applicant using
// variant, or the default variant when variant is empty.
func (p *Predictor) Predict(ctx context.Context, applicant models.ApplicantRecord, variant string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.NewTimeoutError("predictor", err)
	}
	model, resolved, err := p.bundle.Model(variant)
	if err != nil {
		return 0, err
	}

	prob, err := Predict(applicant, p.bundle.Reference, model, p.bundle.Scaler, p.bundle.Schema, p.opts)
	if err != nil {
		p.logger.Warn("prediction failed", map[string]interface{}{
			"modelVariant": resolved,
			"error":        err.Error(),
		})
		return 0, err
	}

	p.logger.Debug("prediction computed", map[string]interface{}{
		"modelVariant": resolved,
		"probability":  prob,
	})
	return prob, nil
}

// Predict encodes, reconciles and scales one applicant and returns the
// model's class-1 probability times 100. Any failure comes back as a single
// PREDICTION_FAILED error naming the stage. It reads its inputs only.
func Predict(
	applicant models.ApplicantRecord,
	reference *dataset.Matrix,
	model ml.Classifier,
	scaler *ml.MinMaxScaler,
	schema models.FeatureSchema,
	opts Options,
) (float64, error) {
	if err := CheckVersions(model, scaler, schema); err != nil {
		return 0, wrapStage(err)
	}

	columns, row, err := encodeApplicant(applicant, reference, opts.Mode, opts.FillValues)
	if err != nil {
		return 0, wrapStage(err)
	}

	vector, _, err := NewReconciler(opts.Strict).Reconcile(columns, row, schema.Features)
	if err != nil {
		return 0, wrapStage(err)
	}

	scaled, err := scaler.Transform(vector)
	if err != nil {
		return 0, wrapStage(fmt.Errorf("%w: %v", ErrScaling, err))
	}

	proba, err := model.PredictProba(scaled)
	if err != nil {
		return 0, wrapStage(fmt.Errorf("%w: %v", ErrModelInvocation, err))
	}
	if len(proba) != 2 {
		return 0, wrapStage(fmt.Errorf("%w: expected 2 class probabilities, got %d", ErrModelInvocation, len(proba)))
	}
	p1 := proba[1]
	if math.IsNaN(p1) || p1 < 0 || p1 > 1 {
		return 0, wrapStage(fmt.Errorf("%w: class probability %v outside [0,1]", ErrModelInvocation, p1))
	}
	return p1 * 100, nil
}

// CheckVersions fails unless model, scaler and schema share one version.
func CheckVersions(model ml.Classifier, scaler *ml.MinMaxScaler, schema models.FeatureSchema) error {
	if model == nil || scaler == nil {
		return fmt.Errorf("%w: model and scaler are required", ErrModelInvocation)
	}
	if err := schema.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaVersionMismatch, err)
	}
	if v := scaler.SchemaVersion(); v != schema.Version {
		return fmt.Errorf("%w: scaler fitted on %q, schema is %q", ErrSchemaVersionMismatch, v, schema.Version)
	}
	if v := model.SchemaVersion(); v != schema.Version {
		return fmt.Errorf("%w: model fitted on %q, schema is %q", ErrSchemaVersionMismatch, v, schema.Version)
	}
	return nil
}

func encodeApplicant(applicant models.ApplicantRecord, reference *dataset.Matrix, mode EncodingMode, fills map[string]string) ([]string, []float64, error) {
	key := uuid.NewString()
	frame := dataset.NewFrame(models.ApplicantFields)
	frame.Append(key, applicant.Values())

	var encoder *Encoder
	switch mode {
	case ModeDomains, "":
		encoder = DefaultEncoder().WithFillValues(fills)
	case ModeReference:
		if reference == nil {
			return nil, nil, fmt.Errorf("%w: reference dataset is not loaded", ErrEncoding)
		}
		decoded, err := DecodeIndicators(reference)
		if err != nil {
			return nil, nil, err
		}
		frame = frame.Concat(decoded)
		encoder = NewObservedEncoder()
	default:
		return nil, nil, fmt.Errorf("%w: unknown encoding mode %q", ErrEncoding, mode)
	}

	encoded, err := encoder.Encode(frame)
	if err != nil {
		return nil, nil, err
	}
	row, ok := encoded.RowByKey(key)
	if !ok {
		return nil, nil, fmt.Errorf("%w: applicant row %s lost during encoding", ErrEncoding, key)
	}
	return encoded.Columns, row, nil
}

func wrapStage(err error) error {
	stage := apperrors.ErrCodePredictionFailed
	switch {
	case errors.Is(err, ErrEncoding):
		stage = apperrors.ErrCodeEncodingFailed
	case errors.Is(err, ErrSchemaVersionMismatch):
		stage = apperrors.ErrCodeSchemaVersionMismatch
	case errors.Is(err, ErrSchemaMismatch):
		stage = apperrors.ErrCodeSchemaMismatch
	case errors.Is(err, ErrScaling):
		stage = apperrors.ErrCodeScalingFailed
	case errors.Is(err, ErrModelInvocation):
		stage = apperrors.ErrCodeModelInvocationFailed
	}
	return apperrors.NewPredictionFailedError(stage, err)
}
