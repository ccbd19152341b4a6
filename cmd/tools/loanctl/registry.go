package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"loan-eligibility/pkg/registry"
)

var (
	registryPathFlag = &cli.StringFlag{
		Name:  "path",
		Usage: "Path to the activity registry",
		Value: "configs/activity-registry.json",
	}

	activityIDFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "Activity ID (e.g. loan.eligibility.predict)",
		Required: true,
	}

	fieldFlag = &cli.StringFlag{
		Name:     "field",
		Usage:    "Field to update [status, version, displayName, description, category, timeout, retries]",
		Required: true,
	}

	workflowFlag = &cli.StringFlag{
		Name:  "workflow",
		Usage: "Only list activities used by this BPMN process id",
	}

	valueFlag = &cli.StringFlag{
		Name:     "value",
		Usage:    "New value for the field",
		Required: true,
	}

	registryCmd = &cli.Command{
		Name:            "registry",
		Usage:           "Inspect and maintain the activity registry",
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Check ids, task types and input schemas",
				UsageText: "loanctl registry validate --path configs/activity-registry.json",
				Action:    cmdRegistryValidate,
				Flags:     []cli.Flag{registryPathFlag},
			},
			{
				Name:   "list",
				Usage:  "List registered activities",
				Action: cmdRegistryList,
				Flags:  []cli.Flag{registryPathFlag, workflowFlag},
			},
			{
				Name:      "update",
				Usage:     "Set one field of an activity",
				UsageText: "loanctl registry update --id loan.prediction.record --field status --value verified",
				Action:    cmdRegistryUpdate,
				Flags:     []cli.Flag{registryPathFlag, activityIDFlag, fieldFlag, valueFlag},
			},
		},
	}
)

// ActivitySummary is one row of registry list.
type ActivitySummary struct {
	ID       string `json:"id" yaml:"id"`
	TaskType string `json:"taskType" yaml:"taskType"`
	Status   string `json:"status" yaml:"status"`
	Timeout  string `json:"timeout" yaml:"timeout"`
	Retries  int    `json:"retries" yaml:"retries"`
}

func registryPath(c *cli.Context) string {
	if cfg := getConfig(c).Config; cfg != nil {
		return stringOr(c, registryPathFlag.Name, cfg.Registry.Path)
	}
	return c.String(registryPathFlag.Name)
}

func loadRegistry(c *cli.Context) (*registry.ActivityRegistry, string, error) {
	path := registryPath(c)
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load registry %s: %w", path, err)
	}
	return reg, path, nil
}

func cmdRegistryValidate(c *cli.Context) error {
	reg, path, err := loadRegistry(c)
	if err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	getConfig(c).Logger.Info("registry validation passed", map[string]interface{}{
		"path":       path,
		"activities": len(reg.Activities),
	})
	return nil
}

func cmdRegistryList(c *cli.Context) error {
	reg, _, err := loadRegistry(c)
	if err != nil {
		return err
	}
	activities := reg.Activities
	if wf := c.String(workflowFlag.Name); wf != "" {
		activities = reg.ForWorkflow(wf)
	}
	list := make([]ActivitySummary, 0, len(activities))
	for _, a := range activities {
		list = append(list, ActivitySummary{
			ID:       a.ID,
			TaskType: a.TaskType,
			Status:   a.ImplementationStatus,
			Timeout:  a.Timeout,
			Retries:  a.Retries,
		})
	}
	return getConfig(c).encode(list)
}

func cmdRegistryUpdate(c *cli.Context) error {
	reg, path, err := loadRegistry(c)
	if err != nil {
		return err
	}
	id := c.String(activityIDFlag.Name)
	field := c.String(fieldFlag.Name)
	if err := reg.Update(id, field, c.String(valueFlag.Name)); err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("update leaves the registry invalid: %w", err)
	}
	if err := registry.SaveRegistry(reg, path); err != nil {
		return err
	}
	getConfig(c).Logger.Info("activity updated", map[string]interface{}{
		"id":    id,
		"field": field,
	})
	return nil
}
