package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogWriter is the writer used for application and database logs.
var LogWriter io.Writer = os.Stdout

// Log is the shared application logger.
var Log = newLogger()

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(LogWriter)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// LogFilePath returns the path to the backend log file.
func LogFilePath() string {
	return filepath.Join("logs", "workflow-api.log")
}

// InitLogging prepares the log file and points both logrus and the standard logger at it.
func InitLogging(level, environment string) (*os.File, io.Writer) {
	Log.SetLevel(ParseLevel(level))
	if environment == "production" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}

	logPath := filepath.Dir(LogFilePath())
	if err := os.MkdirAll(logPath, os.ModePerm); err != nil {
		Log.WithError(err).Warn("failed to create logs directory")
	}

	logFile, err := os.OpenFile(LogFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		Log.WithError(err).Warn("failed to open log file, logging to stdout only")
		LogWriter = os.Stdout
	} else {
		LogWriter = io.MultiWriter(os.Stdout, logFile)
	}

	Log.SetOutput(LogWriter)
	log.SetOutput(LogWriter)
	if err != nil {
		return nil, LogWriter
	}
	return logFile, LogWriter
}

func ParseLevel(level string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
