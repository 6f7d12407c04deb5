package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/qlink/pkg/config"
)

// loadConfig reads the file named by --config, or returns the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// parseLogLevel accepts the levels offered by --log-level.
func parseLogLevel(name string) (logrus.Level, error) {
	switch name {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
	}
}

// configureLogger builds the command logger from cfg.
//
// Precedence: --log-level, then --verbose, then the log_level of an explicit --config
// file. Without any of them the logger stays silent (panic level) so operator output
// is not interleaved with log lines.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level := logrus.PanicLevel

	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		var err error
		if level, err = parseLogLevel(name); err != nil {
			return nil, err
		}
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logrus.DebugLevel
	} else if path, _ := cmd.Flags().GetString("config"); path != "" {
		level = cfg.LogLevel
	}

	logger := cfg.NewLogger()
	logger.SetLevel(level)
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// setup loads configuration and the logger shared by every command.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
