package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"cadence/practice/internal/config"
)

// New builds the process logger. Production and staging emit JSON, every
// other environment gets the human-readable text formatter.
func New(cfg config.Config) *logrus.Logger {
	return build(os.Stdout, cfg.LogLevel, cfg.Environment)
}

func build(out io.Writer, level, environment string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warnf("invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	switch strings.ToLower(environment) {
	case "production", "staging":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return log
}
