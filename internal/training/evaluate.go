// internal/training/evaluate.go
package training

import (
	"loan-eligibility/internal/artifacts"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/prediction"
)

// EvaluateBundle scores every variant of b against a processed table that
// still carries the target column. Columns are reconciled to the bundle
// schema first, so an older processed file can be used as a holdout.
func EvaluateBundle(b *artifacts.Bundle, processed *dataset.Matrix, threshold float64) (map[string]*ml.Evaluation, error) {
	features, y, err := processed.Split(b.Manifest.Target)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("evaluate", err)
	}
	aligned, err := prediction.NewReconciler(false).ReconcileMatrix(features, b.Schema.Features)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("evaluate", err)
	}
	X, err := ml.DenseFromRows(aligned.Rows)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("evaluate", err)
	}
	scaled, err := b.Scaler.TransformMatrix(X)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("evaluate", err)
	}

	out := make(map[string]*ml.Evaluation, len(b.Models))
	for _, variant := range b.Variants() {
		eval, err := ml.Evaluate(b.Models[variant], scaled, y, threshold)
		if err != nil {
			return nil, apperrors.NewTrainingFailedError("evaluate_"+variant, err)
		}
		out[variant] = eval
	}
	return out, nil
}
