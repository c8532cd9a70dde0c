package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

// Setup builds the process logger from configuration.
func Setup(cfg *config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output == "stderr" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(os.Stdout)
	}

	log.SetReportCaller(cfg.IncludeCaller)

	return log
}
