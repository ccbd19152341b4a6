package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"loan-eligibility/internal/common/camunda"
	"loan-eligibility/internal/common/config"
)

const defaultProcessID = "loan-eligibility"

var (
	brokerFlag = &cli.StringFlag{
		Name:    "broker",
		Usage:   "Zeebe gateway address",
		Value:   "localhost:26500",
		EnvVars: []string{"ZEEBE_BROKER_ADDRESS"},
	}

	processIDFlag = &cli.StringFlag{
		Name:  "process-id",
		Usage: "BPMN process id to start",
		Value: defaultProcessID,
	}

	awaitFlag = &cli.BoolFlag{
		Name:  "await",
		Usage: "Wait for the instance to complete and print its variables (optional, default: false)",
	}

	awaitTimeoutFlag = &cli.DurationFlag{
		Name:  "await-timeout",
		Usage: "How long --await waits for the result",
		Value: time.Minute,
	}

	processCmd = &cli.Command{
		Name:            "process",
		Usage:           "Drive the loan BPMN process on Zeebe",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start a process instance for one applicant",
				UsageText: `loanctl process start --applicant applicant.json
   loanctl process start --applicant applicant.json --await --variant logistic_regression`,
				Action: cmdProcessStart,
				Flags: []cli.Flag{
					brokerFlag,
					processIDFlag,
					applicantFlag,
					variantFlag,
					awaitFlag,
					awaitTimeoutFlag,
				},
			},
		},
	}
)

// processVariables builds the instance variables from a raw applicant.
func processVariables(raw []byte, variant string) (map[string]interface{}, error) {
	var applicant interface{}
	if err := json.Unmarshal(raw, &applicant); err != nil {
		return nil, fmt.Errorf("applicant is not valid JSON: %w", err)
	}
	if _, ok := applicant.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("applicant must be a JSON object")
	}
	vars := map[string]interface{}{"applicant": applicant}
	if variant != "" {
		vars["modelVariant"] = variant
	}
	return vars, nil
}

func cmdProcessStart(c *cli.Context) error {
	app := getConfig(c)
	raw, err := readInput(c, c.String(applicantFlag.Name))
	if err != nil {
		return fmt.Errorf("reading applicant: %w", err)
	}
	vars, err := processVariables(raw, c.String(variantFlag.Name))
	if err != nil {
		return err
	}

	camundaCfg := config.CamundaConfig{BrokerAddress: c.String(brokerFlag.Name)}
	if cfg := app.Config; cfg != nil {
		camundaCfg = cfg.Camunda
		camundaCfg.BrokerAddress = stringOr(c, brokerFlag.Name, cfg.Camunda.BrokerAddress)
	}
	client, err := camunda.NewClientWithConfig(camunda.FromConfig(camundaCfg))
	if err != nil {
		return fmt.Errorf("connecting to zeebe: %w", err)
	}
	defer client.Close()

	processID := c.String(processIDFlag.Name)
	if c.Bool(awaitFlag.Name) {
		instance, err := client.RunInstance(c.Context, processID, vars, c.Duration(awaitTimeoutFlag.Name))
		if err != nil {
			return fmt.Errorf("process %s did not complete: %w", processID, err)
		}
		return app.encode(instance)
	}

	instance, err := client.StartInstance(c.Context, processID, vars)
	if err != nil {
		return err
	}
	app.Logger.Info("process instance created", map[string]interface{}{
		"processInstanceKey": instance.ProcessInstanceKey,
		"bpmnProcessId":      processID,
	})
	return app.encode(instance)
}
