package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vizor/internal/http/handlers"
	"vizor/internal/infra"
	"vizor/internal/middleware"
)

// RouterOptions carries the router's cross-cutting dependencies.
type RouterOptions struct {
	Logger        infra.Logger
	DefaultLocale string
	CountryLookup middleware.CountryLookup
}

// NewRouter wires all routes and middleware.
func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.I18N(opts.DefaultLocale, opts.CountryLookup))

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/providers", app.Providers)

	r.Route("/v1/generate", func(r chi.Router) {
		r.Post("/", app.Generate)
		r.Get("/stream", app.GenerateStream)
	})

	r.Method(stdhttp.MethodGet, "/metrics", app.Metrics.Handler())

	return r
}
