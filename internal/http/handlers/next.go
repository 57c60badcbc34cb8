package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"frameart/internal/middleware"
	"frameart/internal/scheduler"
)

type nextResponse struct {
	Mode             string     `json:"mode"`
	PromptUsed       string     `json:"prompt_used"`
	Sequence         int        `json:"sequence"`
	GeneratedImageAt *time.Time `json:"generated_image_at"`
	GeneratedVideoAt *time.Time `json:"generated_video_at"`
	ImageURL         string     `json:"image_url"`
	VideoURL         *string    `json:"video_url"`
	Stale            bool       `json:"stale"`
	VideoError       string     `json:"video_error,omitempty"`
}

// Next is polled by the frame. It returns the current still, regenerating it
// first when the refresh interval has elapsed, and its video for mode=video.
func (a *App) Next(w http.ResponseWriter, r *http.Request) {
	var want scheduler.Want
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode"))) {
	case "", "image":
	case "video":
		want.Video = true
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "mode must be image or video")
		return
	}

	res, err := a.Frame.Serve(r.Context(), want)
	if err != nil && res.Asset.IsZero() {
		if errors.Is(err, context.Canceled) {
			return
		}
		status, code := failure(err)
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Int("status", status).
			Msg("next: no still to serve")
		a.error(w, status, code, err.Error())
		return
	}

	created := res.Asset.CreatedAt
	resp := nextResponse{
		Mode:             string(a.Frame.Settings().Mode),
		PromptUsed:       res.Prompt,
		Sequence:         res.Asset.Seq,
		GeneratedImageAt: &created,
		ImageURL:         "/" + res.Asset.StorageKey,
		Stale:            res.Stale,
	}
	if err != nil {
		// The still is good; only its video failed.
		a.Logger.Warn().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("asset", res.Asset.ID().String()).
			Msg("next: serving still without video")
		resp.VideoError = err.Error()
	}
	if res.Artifact != nil && res.Artifact.StorageKey != "" {
		url := "/" + res.Artifact.StorageKey
		at := res.Artifact.CreatedAt
		resp.VideoURL = &url
		resp.GeneratedVideoAt = &at
	}
	a.json(w, http.StatusOK, resp)
}
