package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/spf13/cobra"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	envFile   string
	logLevel  string
	logFormat string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "parksim",
		Short: "Parking allocation simulator",
		Long: `parksim loads a parking lot layout, derives one record per stall and ` +
			`per stall group, and simulates vehicles arriving and leaving while a ` +
			`single consumer applies every allocation to the occupancy ledger.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text or json); overrides LOG_FORMAT")

	root.AddCommand(newRunCmd(opts), newLayoutCmd(opts))
	return root
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// logger builds the process logger. Logs go to stderr so that stdout carries
// only rendered output.
func (o *globalOptions) logger() logging.Logger {
	level := os.Getenv("LOG_LEVEL")
	if o.logLevel != "" {
		level = o.logLevel
	}
	format := os.Getenv("LOG_FORMAT")
	if o.logFormat != "" {
		format = o.logFormat
	}
	return logging.New(logging.Config{Level: level, Format: format, Output: os.Stderr})
}
