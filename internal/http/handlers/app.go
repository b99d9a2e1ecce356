package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"vizor/internal/domain"
	"vizor/internal/infra"
	"vizor/internal/metrics"
	"vizor/internal/pipeline"
	"vizor/internal/provider"
)

// Runner is the pipeline surface the handlers depend on. Tests substitute a
// stub implementation.
type Runner interface {
	Run(ctx context.Context, req domain.GenerationRequest, mode pipeline.Mode) <-chan pipeline.Event
}

// App carries handler dependencies.
type App struct {
	Pipeline Runner
	Registry *provider.Registry
	Metrics  *metrics.Pipeline
	Logger   infra.Logger
}

// NewApp constructs the handler container.
func NewApp(p Runner, registry *provider.Registry, m *metrics.Pipeline, logger infra.Logger) *App {
	return &App{Pipeline: p, Registry: registry, Metrics: m, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error":   errCode,
		"message": message,
	})
}
