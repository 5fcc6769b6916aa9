package log

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// newBaseHandler mirrors the teacher's cmd/scheduler newLogger: tint in
// local development, JSON otherwise.
func newBaseHandler(env string, level slog.Level) slog.Handler {
	if env == "local" || env == "" {
		return tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}
