package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines a simple interface for logging.
// This allows for easy replacement with a more sophisticated logger if needed.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}

// NewLogger creates the logrus-backed logger used across the tool.
// Silent mode keeps errors visible but drops everything below; when a log
// file is given, output goes to that file (rotated) instead of stderr and
// colors are disabled.
func NewLogger(level string, noColor bool, silent bool, logFile string) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(ParseLevel(level))
	if silent && log.GetLevel() > logrus.ErrorLevel {
		log.SetLevel(logrus.ErrorLevel)
	}

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
		DisableColors:   noColor || logFile != "",
	})

	log.SetOutput(os.Stderr)
	if logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		})
	}
	return log
}

// ParseLevel converts a log level string to a logrus level.
// Defaults to info if the string is unrecognized.
func ParseLevel(levelStr string) logrus.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level string '%s', defaulting to INFO.\n", levelStr)
		return logrus.InfoLevel
	}
}
