package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"loan-eligibility/internal/artifacts"
	"loan-eligibility/internal/dataset"
	"loan-eligibility/internal/training"
)

var (
	dataFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "Processed table to score, target column included",
		Value: "data/processed_loan_data.csv",
	}

	evaluateCmd = &cli.Command{
		Name:            "evaluate",
		Usage:           "Score every variant of a saved bundle against a processed table",
		UsageText:       "loanctl evaluate --artifacts models --data data/processed_loan_data.csv",
		HideHelpCommand: true,
		Action:          cmdEvaluate,
		Flags: []cli.Flag{
			artifactsDirFlag,
			dataFlag,
			thresholdFlag,
		},
	}
)

func cmdEvaluate(c *cli.Context) error {
	app := getConfig(c)
	dir := c.String(artifactsDirFlag.Name)
	data := c.String(dataFlag.Name)
	threshold := c.Float64(thresholdFlag.Name)
	if cfg := app.Config; cfg != nil {
		dir = stringOr(c, artifactsDirFlag.Name, cfg.Artifacts.Dir)
		data = stringOr(c, dataFlag.Name, cfg.Training.ProcessedData)
		threshold = floatOr(c, thresholdFlag.Name, cfg.Training.Threshold)
	}

	bundle, err := artifacts.Load(dir, "")
	if err != nil {
		return fmt.Errorf("loading artifacts: %w", err)
	}
	processed, err := dataset.LoadMatrix(data)
	if err != nil {
		return fmt.Errorf("loading %s: %w", data, err)
	}
	app.Logger.Debug("evaluating bundle", map[string]interface{}{
		"schemaVersion": bundle.Schema.Version,
		"rows":          processed.Len(),
	})

	evals, err := training.EvaluateBundle(bundle, processed, threshold)
	if err != nil {
		return err
	}

	if err := app.encode(evals); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	return nil
}
