package httpapi

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"frameart/internal/http/handlers"
	"frameart/internal/middleware"
)

type Options struct {
	Logger zerolog.Logger
	// DataDir holds the images, videos and inspiration directories.
	DataDir string
	// RateLimitPerMin bounds write requests per client; zero disables it.
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger, "/api/next", "/v1/healthz"),
		chimw.Recoverer,
	)

	r.Get("/v1/healthz", app.Health)

	r.Get("/", app.SettingsPage)
	r.Get("/display", app.Display)

	writes := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Get("/next", app.Next)
		r.Get("/prompt", app.PromptGet)
		r.With(writes).Post("/prompt", app.PromptSet)
	})

	r.Group(func(r chi.Router) {
		r.Use(writes)
		r.Post("/set-prompt", app.SetPromptForm)
		r.Post("/upload-inspiration", app.UploadInspiration)
	})

	for _, dir := range []string{"images", "videos", "inspiration"} {
		mountStatic(r, "/"+dir, filepath.Join(opts.DataDir, dir))
	}

	return r
}

// mountStatic serves files from dir under prefix without directory listings.
func mountStatic(r chi.Router, prefix, dir string) {
	fs := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(dir)))
	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "*") == "" {
			http.NotFound(w, req)
			return
		}
		fs.ServeHTTP(w, req)
	})
}
