package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/brickd/pkg/config"
)

// configureLogger builds the logger from the config file level, then applies
// --log-level or --verbose, with --log-level taking precedence.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logger := cfg.NewLogger()

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		level, err := config.ParseLogLevel(logLevelStr)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
		return logger, nil
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger, nil
}
