package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide log instance. Callers normally go through
// the package-level helpers below; InitLogger replaces the instance
// with a configured one.
var Logger *logrus.Logger

// LogConfig configures the storage engine log output.
type LogConfig struct {
	LogPath  string // optional file; stdout only when empty
	LogLevel string // debug|info|warn|error
}

// CustomFormatter renders entries as "[time] [LVL] message".
type CustomFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	return []byte(fmt.Sprintf("[%s] [%s] %s\n", timestamp, level, entry.Message)), nil
}

func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// InitLogger configures the package logger. Safe to call more than
// once; the last configuration wins.
func InitLogger(config LogConfig) error {
	l := logrus.New()
	l.SetFormatter(&CustomFormatter{TimestampFormat: "15:04:05 2006/01/02"})
	l.SetLevel(parseLogLevel(config.LogLevel))
	l.SetOutput(os.Stdout)

	if config.LogPath != "" {
		logFile, err := openLogFile(config.LogPath)
		if err != nil {
			l.Warnf("Failed to open log file %s, fallback to stdout: %v", config.LogPath, err)
		} else {
			l.SetOutput(io.MultiWriter(os.Stdout, logFile))
		}
	}

	Logger = l
	return nil
}

func openLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

func instance() *logrus.Logger {
	if Logger == nil {
		l := logrus.New()
		l.SetFormatter(&CustomFormatter{TimestampFormat: "15:04:05 2006/01/02"})
		l.SetLevel(logrus.InfoLevel)
		Logger = l
	}
	return Logger
}

func Debug(args ...interface{}) { instance().Debug(args...) }

func Debugf(format string, args ...interface{}) { instance().Debugf(format, args...) }

func Info(args ...interface{}) { instance().Info(args...) }

func Infof(format string, args ...interface{}) { instance().Infof(format, args...) }

func Warn(args ...interface{}) { instance().Warn(args...) }

func Warnf(format string, args ...interface{}) { instance().Warnf(format, args...) }

func Error(args ...interface{}) { instance().Error(args...) }

func Errorf(format string, args ...interface{}) { instance().Errorf(format, args...) }
