package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"loan-eligibility/internal/api"
	"loan-eligibility/internal/artifacts"
	commonhttp "loan-eligibility/internal/common/http"
	"loan-eligibility/internal/common/validation"
	"loan-eligibility/internal/prediction"
	"loan-eligibility/internal/scoring"
)

const predictionsPath = "/api/v1/predictions"

var errApplicantInvalid = errors.New("applicant is invalid")

var (
	applicantFlag = &cli.StringFlag{
		Name:     "applicant",
		Usage:    "JSON file holding one applicant, - reads stdin",
		Required: true,
	}

	variantFlag = &cli.StringFlag{
		Name:  "variant",
		Usage: "Model variant (optional, defaults to the bundle default)",
	}

	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "Base URL of a running service; when set the prediction is made remotely",
		EnvVars: []string{"LOAN_SERVICE_URL"},
	}

	encodingModeFlag = &cli.StringFlag{
		Name:  "encoding-mode",
		Usage: "Feature encoding for local predictions [domains, reference]",
		Value: string(prediction.ModeDomains),
	}

	referenceFlag = &cli.StringFlag{
		Name:  "reference",
		Usage: "Processed reference table, required by reference encoding",
		Value: "data/processed_loan_data.csv",
	}

	lenientFlag = &cli.BoolFlag{
		Name:  "lenient",
		Usage: "Fill missing feature columns with zero instead of failing (optional, default: false)",
	}

	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout for remote predictions",
		Value: 30 * time.Second,
	}

	predictCmd = &cli.Command{
		Name:  "predict",
		Usage: "Score one applicant with a local bundle or a running service",
		UsageText: `loanctl predict --applicant applicant.json --variant random_forest
   cat applicant.json | loanctl predict --applicant - --url http://localhost:8080`,
		HideHelpCommand: true,
		Action:          cmdPredict,
		Flags: []cli.Flag{
			applicantFlag,
			variantFlag,
			urlFlag,
			artifactsDirFlag,
			encodingModeFlag,
			referenceFlag,
			lenientFlag,
			timeoutFlag,
		},
	}
)

func cmdPredict(c *cli.Context) error {
	app := getConfig(c)
	raw, err := readInput(c, c.String(applicantFlag.Name))
	if err != nil {
		return fmt.Errorf("reading applicant: %w", err)
	}

	if url := c.String(urlFlag.Name); url != "" {
		return predictRemote(c, app, url, raw)
	}
	return predictLocal(c, app, raw)
}

func predictRemote(c *cli.Context, app *appConfig, url string, raw []byte) error {
	client := commonhttp.NewClient(url, c.Duration(timeoutFlag.Name))
	req := api.PredictionRequest{
		Applicant:    json.RawMessage(raw),
		ModelVariant: c.String(variantFlag.Name),
	}

	var out map[string]interface{}
	if err := client.PostJSON(c.Context, predictionsPath, req, &out); err != nil {
		return fmt.Errorf("remote prediction failed: %w", err)
	}
	return app.encode(out)
}

func predictLocal(c *cli.Context, app *appConfig, raw []byte) error {
	schema, err := validation.NewSchemaValidator(validation.ApplicantSchema())
	if err != nil {
		return err
	}
	applicant, result := validation.ValidateApplicantDocument(raw, schema)
	if !result.Valid {
		if err := app.encode(result); err != nil {
			return err
		}
		return errApplicantInvalid
	}

	service, err := localService(c, app)
	if err != nil {
		return err
	}
	scored, err := service.Score(c.Context, *applicant, c.String(variantFlag.Name))
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}
	return app.encode(scored)
}

// localService loads the bundle and wraps it in an uncached scoring service.
func localService(c *cli.Context, app *appConfig) (*scoring.Service, error) {
	dir := c.String(artifactsDirFlag.Name)
	modeName := c.String(encodingModeFlag.Name)
	reference := c.String(referenceFlag.Name)
	strict := !c.Bool(lenientFlag.Name)
	if cfg := app.Config; cfg != nil {
		dir = stringOr(c, artifactsDirFlag.Name, cfg.Artifacts.Dir)
		modeName = stringOr(c, encodingModeFlag.Name, cfg.Prediction.EncodingMode)
		reference = stringOr(c, referenceFlag.Name, cfg.Artifacts.ReferenceData)
		if !c.IsSet(lenientFlag.Name) {
			strict = cfg.Prediction.StrictSchema
		}
	}

	mode, err := prediction.ParseEncodingMode(modeName)
	if err != nil {
		return nil, err
	}
	if mode != prediction.ModeReference {
		reference = ""
	}
	bundle, err := artifacts.Load(dir, reference)
	if err != nil {
		return nil, fmt.Errorf("loading artifacts: %w", err)
	}
	predictor, err := prediction.NewPredictor(bundle, prediction.Options{Mode: mode, Strict: strict}, app.Logger)
	if err != nil {
		return nil, err
	}
	return scoring.NewService(predictor, nil, 0, nil, app.Logger), nil
}
