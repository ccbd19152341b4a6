// cmd/tools/loanctl/main.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"loan-eligibility/internal/common/config"
	"loan-eligibility/internal/common/logger"
)

const (
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the service config file; its training and artifact settings become flag defaults (optional)",
		EnvVars: []string{"LOANCTL_CONFIG"},
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// appConfig is what Before hands to every command.
type appConfig struct {
	Config *config.Config
	Logger logger.Logger
	Format string
	Out    io.Writer
}

func getConfig(c *cli.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "loanctl",
		Version:         fmt.Sprintf("%s (commit: %s)", version, commit),
		Compiled:        time.Now(),
		HideHelpCommand: true,
		Usage:           "Train, evaluate and exercise the loan eligibility models",
		Flags: []cli.Flag{
			debugFlag,
			configFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			trainCmd,
			evaluateCmd,
			predictCmd,
			registryCmd,
			processCmd,
		},
		Before: func(c *cli.Context) error {
			level := "info"
			if c.Bool(debugFlag.Name) {
				level = "debug"
			}
			// stdout carries command output
			log := logger.NewZapAdapter(logger.NewWithOutput(level, "console", []string{"stderr"}))

			var cfg *config.Config
			if path := c.String(configFlag.Name); path != "" {
				loaded, err := config.LoadFromFile(path)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				cfg = loaded
			}

			format := formatJSON
			if f := c.String(formatFlag.Name); f == formatYAML || f == "yml" {
				format = formatYAML
			}

			if c.App.Metadata == nil {
				c.App.Metadata = map[string]interface{}{}
			}
			c.App.Metadata[appConfigKey] = &appConfig{
				Config: cfg,
				Logger: log,
				Format: format,
				Out:    c.App.Writer,
			}
			return nil
		},
	}
}

// encode writes v to the command output in the selected format.
func (a *appConfig) encode(v interface{}) error {
	if a.Format == formatYAML {
		return yaml.NewEncoder(a.Out).Encode(v)
	}
	e := json.NewEncoder(a.Out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// stringOr returns the flag value when it was set explicitly, otherwise the
// config value when one is present, otherwise the flag default.
func stringOr(c *cli.Context, name, fromConfig string) string {
	if !c.IsSet(name) && fromConfig != "" {
		return fromConfig
	}
	return c.String(name)
}

func intOr(c *cli.Context, name string, fromConfig int) int {
	if !c.IsSet(name) && fromConfig != 0 {
		return fromConfig
	}
	return c.Int(name)
}

func floatOr(c *cli.Context, name string, fromConfig float64) float64 {
	if !c.IsSet(name) && fromConfig != 0 {
		return fromConfig
	}
	return c.Float64(name)
}

// readInput reads a file, or stdin when path is "-".
func readInput(c *cli.Context, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(c.App.Reader)
	}
	return os.ReadFile(path)
}
