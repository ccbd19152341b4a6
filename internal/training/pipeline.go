// internal/training/pipeline.go
package training

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"loan-eligibility/internal/artifacts"
	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/common/logger"
	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/prediction"
)

// Options configures one training run.
type Options struct {
	RawData        string
	ProcessedData  string
	OutputDir      string
	DefaultVariant string
	TestSize       float64
	Seed           int64
	Trees          int
	MaxFeatures    int // features per forest tree; 0 uses all
	CVFolds        int
	Threshold      float64
}

func DefaultOptions() Options {
	return Options{
		DefaultVariant: models.VariantRandomForest,
		TestSize:       0.2,
		Seed:           42,
		Trees:          100,
		CVFolds:        5,
		Threshold:      0.5,
	}
}

// Result holds what a run produced.
type Result struct {
	Bundle    *artifacts.Bundle
	Processed *dataset.Matrix
}

// Pipeline preprocesses the raw loan table, fits the scaler and both model
// variants, evaluates them and writes the artifact bundle.
type Pipeline struct {
	opts   Options
	logger logger.Logger
}

func NewPipeline(opts Options, log logger.Logger) *Pipeline {
	defaults := DefaultOptions()
	if opts.DefaultVariant == "" {
		opts.DefaultVariant = defaults.DefaultVariant
	}
	if opts.TestSize == 0 {
		opts.TestSize = defaults.TestSize
	}
	if opts.Trees == 0 {
		opts.Trees = defaults.Trees
	}
	if opts.CVFolds == 0 {
		opts.CVFolds = defaults.CVFolds
	}
	if opts.Threshold == 0 {
		opts.Threshold = defaults.Threshold
	}
	return &Pipeline{
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "training"}),
	}
}

// Run reads RawData, trains, and writes ProcessedData and the bundle in
// OutputDir.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	raw, err := dataset.LoadCSV(p.opts.RawData)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("load", err)
	}
	p.logger.Info("raw data loaded", map[string]interface{}{
		"path": p.opts.RawData,
		"rows": raw.Len(),
	})

	result, err := p.Train(ctx, raw)
	if err != nil {
		return nil, err
	}

	if p.opts.ProcessedData != "" {
		if err := result.Processed.SaveCSV(p.opts.ProcessedData); err != nil {
			return nil, apperrors.NewTrainingFailedError("save_processed", err)
		}
		p.logger.Info("processed data saved", map[string]interface{}{"path": p.opts.ProcessedData})
	}

	if p.opts.OutputDir != "" {
		if err := artifacts.Save(p.opts.OutputDir, result.Bundle); err != nil {
			return nil, apperrors.NewTrainingFailedError("save_artifacts", err)
		}
		p.logger.Info("artifacts saved", map[string]interface{}{
			"dir":           p.opts.OutputDir,
			"schemaVersion": result.Bundle.Schema.Version,
		})
	}
	return result, nil
}

// Train runs the pipeline on an in-memory raw frame without touching disk.
func (p *Pipeline) Train(ctx context.Context, raw *dataset.Frame) (*Result, error) {
	if !raw.HasColumn(models.FieldLoanApproved) {
		return nil, apperrors.NewTrainingFailedError("preprocess",
			fmt.Errorf("%w: %s", dataset.ErrColumnNotFound, models.FieldLoanApproved))
	}

	encoder := prediction.DefaultEncoder()
	fills, err := encoder.FillValues(raw)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("preprocess", err)
	}
	encoded, err := encoder.Encode(raw)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("preprocess", err)
	}
	reconciler := prediction.NewReconciler(true)
	processed, err := reconciler.ReconcileMatrix(encoded, encoded.Columns)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("preprocess", err)
	}

	features, y, err := processed.Split(models.FieldLoanApproved)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("split", err)
	}
	for i, v := range encoded.Rows {
		target := v[encoded.Index(models.FieldLoanApproved)]
		if math.IsNaN(target) || (target != 0 && target != 1) {
			return nil, apperrors.NewTrainingFailedError("split",
				fmt.Errorf("row %s has target %v, expected Y/N", encoded.Keys[i], target))
		}
	}
	schema := models.NewFeatureSchema(features.Columns)
	p.logger.Info("data preprocessed", map[string]interface{}{
		"rows":          processed.Len(),
		"features":      len(schema.Features),
		"schemaVersion": schema.Version,
	})

	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTrainingFailedError("split", err)
	}

	X, err := ml.DenseFromRows(features.Rows)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("split", err)
	}
	trainIdx, testIdx, err := ml.StratifiedSplit(y, p.opts.TestSize, p.opts.Seed)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("split", err)
	}

	scaler := ml.NewMinMaxScaler()
	xTrainRaw := ml.SelectRows(X, trainIdx)
	if err := scaler.Fit(xTrainRaw); err != nil {
		return nil, apperrors.NewTrainingFailedError("scale", err)
	}
	scaler.SetSchemaVersion(schema.Version)
	xTrain, err := scaler.TransformMatrix(xTrainRaw)
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("scale", err)
	}
	xTest, err := scaler.TransformMatrix(ml.SelectRows(X, testIdx))
	if err != nil {
		return nil, apperrors.NewTrainingFailedError("scale", err)
	}
	yTrain := ml.SelectValues(y, trainIdx)
	yTest := ml.SelectValues(y, testIdx)

	bundle := &artifacts.Bundle{
		Manifest: artifacts.Manifest{
			Target:         models.FieldLoanApproved,
			DefaultVariant: p.opts.DefaultVariant,
			CreatedAt:      time.Now().UTC().Format(time.RFC3339),
			FillValues:     fills,
		},
		Schema:    schema,
		Scaler:    scaler,
		Models:    map[string]ml.Classifier{},
		Metrics:   map[string]*ml.Evaluation{},
		Reference: processed,
	}

	for _, variant := range []string{models.VariantLogisticRegression, models.VariantRandomForest} {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewTrainingFailedError("train_"+variant, err)
		}

		trainer := p.trainer(variant)
		model, err := trainer(xTrain, yTrain)
		if err != nil {
			return nil, apperrors.NewTrainingFailedError("train_"+variant, err)
		}
		model.(interface{ SetSchemaVersion(string) }).SetSchemaVersion(schema.Version)

		eval, err := ml.Evaluate(model, xTest, yTest, p.opts.Threshold)
		if err != nil {
			return nil, apperrors.NewTrainingFailedError("evaluate_"+variant, err)
		}
		if p.opts.CVFolds >= 2 {
			_, mean, std, err := ml.CrossValidate(trainer, xTrain, yTrain, p.opts.CVFolds, p.opts.Seed, p.opts.Threshold)
			if err != nil {
				return nil, apperrors.NewTrainingFailedError("cross_validate_"+variant, err)
			}
			eval.CVMean, eval.CVStd = mean, std
		}
		if forest, ok := model.(*ml.RandomForest); ok {
			eval.Importances = ml.RankImportances(schema.Features, forest.Importances)
		}

		bundle.Models[variant] = model
		bundle.Metrics[variant] = eval
		p.logger.Info("model evaluated", map[string]interface{}{
			"modelVariant": variant,
			"accuracy":     eval.Accuracy,
			"cvMean":       eval.CVMean,
			"cvStd":        eval.CVStd,
		})
	}

	if _, ok := bundle.Models[p.opts.DefaultVariant]; !ok {
		return nil, apperrors.NewTrainingFailedError("select",
			fmt.Errorf("default variant %q was not trained", p.opts.DefaultVariant))
	}
	bundle.Manifest.SchemaVersion = schema.Version
	bundle.Manifest.Features = schema.Features
	bundle.Manifest.Variants = bundle.Variants()

	return &Result{Bundle: bundle, Processed: processed}, nil
}

func (p *Pipeline) trainer(variant string) ml.Trainer {
	switch variant {
	case models.VariantLogisticRegression:
		return func(X *mat.Dense, y []float64) (ml.Classifier, error) {
			m := ml.NewLogisticRegression(1.0, 1000)
			return m, m.Fit(X, y)
		}
	default:
		cfg := ml.DefaultForestConfig()
		cfg.Trees = p.opts.Trees
		cfg.MaxFeatures = p.opts.MaxFeatures
		return func(X *mat.Dense, y []float64) (ml.Classifier, error) {
			m := ml.NewRandomForest(cfg)
			return m, m.Fit(X, y)
		}
	}
}
