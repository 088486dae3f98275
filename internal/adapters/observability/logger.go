package observability

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// NewLogger builds a logrus logger writing to out. Supervised workers pass
// timestamps=false because their log sink stamps each line on capture.
func NewLogger(cfg LogConfig, out io.Writer, timestamps bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{DisableTimestamp: !timestamps})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: !timestamps,
			FullTimestamp:    timestamps,
		})
	}
	return l
}
