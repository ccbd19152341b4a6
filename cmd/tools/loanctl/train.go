package main

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"loan-eligibility/internal/ml"
	"loan-eligibility/internal/models"
	"loan-eligibility/internal/training"
)

var (
	rawDataFlag = &cli.StringFlag{
		Name:  "raw",
		Usage: "Path to the raw loan CSV",
		Value: "data/loan_data.csv",
	}

	processedDataFlag = &cli.StringFlag{
		Name:  "processed",
		Usage: "Where to write the processed table (optional, empty skips it)",
		Value: "data/processed_loan_data.csv",
	}

	artifactsDirFlag = &cli.StringFlag{
		Name:    "artifacts",
		Usage:   "Model artifact directory",
		Value:   "models",
		EnvVars: []string{"LOAN_ARTIFACTS_DIR"},
	}

	defaultVariantFlag = &cli.StringFlag{
		Name:  "default-variant",
		Usage: fmt.Sprintf("Variant served when callers do not pick one [%s, %s]", models.VariantLogisticRegression, models.VariantRandomForest),
		Value: models.VariantRandomForest,
	}

	testSizeFlag = &cli.Float64Flag{
		Name:  "test-size",
		Usage: "Held-out fraction used for evaluation",
		Value: 0.2,
	}

	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Random seed for the split, bootstrap and feature sampling",
		Value: 42,
	}

	treesFlag = &cli.IntFlag{
		Name:  "trees",
		Usage: "Number of trees in the random forest",
		Value: 100,
	}

	maxFeaturesFlag = &cli.IntFlag{
		Name:  "max-features",
		Usage: "Features sampled per forest tree (0 uses all)",
	}

	cvFoldsFlag = &cli.IntFlag{
		Name:  "cv-folds",
		Usage: "Cross-validation folds for the random forest",
		Value: 5,
	}

	thresholdFlag = &cli.Float64Flag{
		Name:  "threshold",
		Usage: "Class-1 probability at or above which a row counts as approved",
		Value: 0.5,
	}

	trainCmd = &cli.Command{
		Name:  "train",
		Usage: "Preprocess the raw data, fit both variants and write the artifact bundle",
		UsageText: `loanctl train --raw data/loan_data.csv --artifacts models
   loanctl --config configs/config.yaml train --trees 200`,
		HideHelpCommand: true,
		Action:          cmdTrain,
		Flags: []cli.Flag{
			rawDataFlag,
			processedDataFlag,
			artifactsDirFlag,
			defaultVariantFlag,
			testSizeFlag,
			seedFlag,
			treesFlag,
			maxFeaturesFlag,
			cvFoldsFlag,
			thresholdFlag,
		},
	}
)

// TrainSummary is the train command output.
type TrainSummary struct {
	SchemaVersion  string                    `json:"schemaVersion" yaml:"schemaVersion"`
	Features       int                       `json:"features" yaml:"features"`
	Rows           int                       `json:"rows" yaml:"rows"`
	DefaultVariant string                    `json:"defaultVariant" yaml:"defaultVariant"`
	OutputDir      string                    `json:"outputDir" yaml:"outputDir"`
	Variants       map[string]VariantSummary `json:"variants" yaml:"variants"`
}

// VariantSummary condenses one variant's evaluation.
type VariantSummary struct {
	Accuracy        float64   `json:"accuracy" yaml:"accuracy"`
	ConfusionMatrix [2][2]int `json:"confusionMatrix" yaml:"confusionMatrix"`
	CVMean          float64   `json:"cvMean,omitempty" yaml:"cvMean,omitempty"`
	CVStd           float64   `json:"cvStd,omitempty" yaml:"cvStd,omitempty"`
	TopFeatures     []string  `json:"topFeatures,omitempty" yaml:"topFeatures,omitempty"`
}

const topFeatureCount = 5

func trainOptions(c *cli.Context) training.Options {
	cfg := getConfig(c).Config
	opts := training.Options{
		RawData:        c.String(rawDataFlag.Name),
		ProcessedData:  c.String(processedDataFlag.Name),
		OutputDir:      c.String(artifactsDirFlag.Name),
		DefaultVariant: c.String(defaultVariantFlag.Name),
		TestSize:       c.Float64(testSizeFlag.Name),
		Seed:           c.Int64(seedFlag.Name),
		Trees:          c.Int(treesFlag.Name),
		MaxFeatures:    c.Int(maxFeaturesFlag.Name),
		CVFolds:        c.Int(cvFoldsFlag.Name),
		Threshold:      c.Float64(thresholdFlag.Name),
	}
	if cfg == nil {
		return opts
	}

	opts.RawData = stringOr(c, rawDataFlag.Name, cfg.Training.RawData)
	opts.ProcessedData = stringOr(c, processedDataFlag.Name, cfg.Training.ProcessedData)
	opts.OutputDir = stringOr(c, artifactsDirFlag.Name, cfg.Artifacts.Dir)
	opts.DefaultVariant = stringOr(c, defaultVariantFlag.Name, cfg.Artifacts.DefaultVariant)
	opts.TestSize = floatOr(c, testSizeFlag.Name, cfg.Training.TestSize)
	if !c.IsSet(seedFlag.Name) && cfg.Training.Seed != 0 {
		opts.Seed = cfg.Training.Seed
	}
	opts.Trees = intOr(c, treesFlag.Name, cfg.Training.Trees)
	opts.MaxFeatures = intOr(c, maxFeaturesFlag.Name, cfg.Training.MaxFeatures)
	opts.CVFolds = intOr(c, cvFoldsFlag.Name, cfg.Training.CVFolds)
	opts.Threshold = floatOr(c, thresholdFlag.Name, cfg.Training.Threshold)
	return opts
}

func cmdTrain(c *cli.Context) error {
	app := getConfig(c)
	opts := trainOptions(c)

	result, err := training.NewPipeline(opts, app.Logger).Run(c.Context)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	bundle := result.Bundle
	summary := TrainSummary{
		SchemaVersion:  bundle.Schema.Version,
		Features:       len(bundle.Schema.Features),
		Rows:           result.Processed.Len(),
		DefaultVariant: bundle.Manifest.DefaultVariant,
		OutputDir:      opts.OutputDir,
		Variants:       summarize(bundle.Metrics),
	}

	if err := app.encode(summary); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	return nil
}

func summarize(evals map[string]*ml.Evaluation) map[string]VariantSummary {
	out := make(map[string]VariantSummary, len(evals))
	for variant, e := range evals {
		if e == nil {
			continue
		}
		s := VariantSummary{
			Accuracy:        e.Accuracy,
			ConfusionMatrix: e.ConfusionMatrix,
			CVMean:          e.CVMean,
			CVStd:           e.CVStd,
		}
		ranked := append([]ml.FeatureImportance(nil), e.Importances...)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Importance > ranked[j].Importance })
		for i := 0; i < len(ranked) && i < topFeatureCount; i++ {
			s.TopFeatures = append(s.TopFeatures, ranked[i].Feature)
		}
		out[variant] = s
	}
	return out
}
