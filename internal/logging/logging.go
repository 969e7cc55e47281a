// Package logging builds the logrus loggers used by both link endpoints.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and destination of log output.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Output is stdout, stderr or a file path. Files are rotated.
	Output string `mapstructure:"output"`

	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// formatter prefixes each message with the owner of the logger.
type formatter struct {
	owner string
	lf    logrus.Formatter
}

func (f *formatter) Format(e *logrus.Entry) ([]byte, error) {
	e.Message = fmt.Sprintf("[%s] %s", f.owner, e.Message)
	return f.lf.Format(e)
}

// New returns a logger for owner configured by c.
func New(owner string, c Config) (*logrus.Logger, error) {
	level := logrus.InfoLevel
	if c.Level != "" {
		var err error
		level, err = logrus.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
	}

	var lf logrus.Formatter
	switch strings.ToLower(c.Format) {
	case "", "text":
		lf = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		}
	case "json":
		lf = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("logging: unknown format %q", c.Format)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&formatter{owner: owner, lf: lf})
	logger.SetOutput(output(c))
	return logger, nil
}

func output(c Config) io.Writer {
	switch strings.ToLower(c.Output) {
	case "", "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   c.Output,
		MaxSize:    atLeast(c.MaxSizeMB, 10),
		MaxBackups: atLeast(c.MaxBackups, 1),
		MaxAge:     atLeast(c.MaxAgeDays, 7),
		Compress:   c.Compress,
	}
}

func atLeast(v, min int) int {
	if v > min {
		return v
	}
	return min
}

// Discard returns a logger for owner that writes nowhere.
func Discard(owner string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetFormatter(&formatter{owner: owner, lf: &logrus.TextFormatter{}})
	return logger
}
