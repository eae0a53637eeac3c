package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithRequest returns a logger carrying the request identity fields.
func WithRequest(requestID, ip, userID string) *slog.Logger {
	return slog.With(
		"request_id", requestID,
		"ip", ip,
		"user_id", userID,
	)
}

// NewJobLogger builds the logrus logger used by background jobs.
func NewJobLogger(job string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if strings.ToLower(os.Getenv("ENVIRONMENT")) == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger.WithField("job", job)
}
