package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"frameart/internal/domain"
	"frameart/internal/infra"
	"frameart/internal/scheduler"
)

// Frame is the part of the scheduler the handlers drive.
type Frame interface {
	Serve(ctx context.Context, want scheduler.Want) (scheduler.Result, error)
	Configure(next domain.Settings) domain.Settings
	SetInspiration(ref domain.ReferenceImage)
	ForceRefresh()
	Settings() domain.Settings
	Snapshot() scheduler.Status
}

// Uploads stores inspiration images under a storage key.
type Uploads interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// DefaultMaxUpload bounds the size of an inspiration upload.
const DefaultMaxUpload = 25 << 20

type AppOptions struct {
	Frame     Frame
	Uploads   Uploads
	Logger    *infra.Logger
	Now       func() time.Time
	MaxUpload int64
}

type App struct {
	Frame     Frame
	Uploads   Uploads
	Logger    *infra.Logger
	now       func() time.Time
	maxUpload int64
	pages     *template.Template
}

func NewApp(opts AppOptions) (*App, error) {
	if opts.Frame == nil {
		return nil, errors.New("handlers: frame is required")
	}
	if opts.Uploads == nil {
		return nil, errors.New("handlers: upload store is required")
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxUpload := opts.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}
	return &App{
		Frame:     opts.Frame,
		Uploads:   opts.Uploads,
		Logger:    logger,
		now:       now,
		maxUpload: maxUpload,
		pages:     pages,
	}, nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// failure maps a pipeline error onto a status and error code.
func failure(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrPromptGenerationFailed):
		return http.StatusBadGateway, "prompt_generation_failed"
	case errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, domain.ErrInvalidRawImage):
		return http.StatusBadGateway, "invalid_raw_image"
	case errors.Is(err, domain.ErrRenderFailed):
		return http.StatusBadGateway, "render_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
