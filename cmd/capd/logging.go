package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bpowers/go-modelcontext/internal/logging"
)

// setupLogging loads .env, configures logrus from LOG_LEVEL and LOG_FILE
// and points the library logger at the same place. The returned func closes
// the log file.
func setupLogging() func() {
	_ = godotenv.Load()

	level := parseLevel(os.Getenv("LOG_LEVEL"), os.Getenv("DEBUG"))
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level >= logrus.DebugLevel && os.Getenv("MODELCONTEXT_DEBUG") == "" {
		logging.SetLogLevel(slog.LevelDebug)
	}

	lf := strings.TrimSpace(os.Getenv("LOG_FILE"))
	if lf == "" {
		return func() {}
	}
	if strings.HasPrefix(lf, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			lf = filepath.Join(home, strings.TrimPrefix(lf, "~"))
		}
	}
	if err := os.MkdirAll(filepath.Dir(lf), 0o755); err != nil {
		logrus.WithError(err).Warn("failed to create directory for LOG_FILE; using stderr only")
		return func() {}
	}
	f, err := os.OpenFile(lf, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.WithError(err).Warn("failed to open LOG_FILE; using stderr only")
		return func() {}
	}
	out := io.MultiWriter(os.Stderr, f)
	logrus.SetOutput(out)
	logging.SetOutput(out)
	logrus.WithField("file", lf).Info("logging to file enabled")
	return func() { _ = f.Close() }
}

func parseLevel(level, debug string) logrus.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" && (debug == "1" || strings.EqualFold(debug, "true")) {
		level = "debug"
	}
	switch level {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
