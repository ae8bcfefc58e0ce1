package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"promptbatch/internal/http/handlers"
	"promptbatch/internal/infra"
	"promptbatch/internal/middleware"
)

// Options carries the cross-cutting settings of the router.
type Options struct {
	Logger         infra.Logger
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	// Health
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/aspect-ratios", app.AspectRatios)

	r.Route("/v1/panel", func(r chi.Router) {
		r.Get("/", app.Panel)
		r.Put("/input", app.InputSet)
		r.Delete("/input", app.InputClear)
		r.Delete("/notice/{id}", app.NoticeDismiss)
	})

	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", app.BatchCreate)
		r.Delete("/current", app.BatchClear)
		r.Get("/current/archive", app.BatchArchive)
	})

	r.Route("/v1/jobs/{id}", func(r chi.Router) {
		r.Post("/copy", app.JobCopy)
		r.Get("/download", app.JobDownload)
	})

	r.Get("/v1/ws", app.Stream)
	r.Get("/static/*", app.Static)

	return r
}
