package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger. JSON output in production and
// wherever LOG_FORMAT=json, human-readable text otherwise.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "molarlink"))
}
