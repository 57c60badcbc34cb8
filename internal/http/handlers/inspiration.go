package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"frameart/internal/domain"
	"frameart/internal/middleware"
)

const inspirationDir = "inspiration"

var inspirationTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

type inspirationResponse struct {
	OK         bool   `json:"ok"`
	Mode       string `json:"mode"`
	Filename   string `json:"filename"`
	PreviewURL string `json:"preview_url"`
}

// UploadInspiration stores the uploaded reference image and switches the
// frame to inspiration mode. The prompt is described on the next refresh.
func (a *App) UploadInspiration(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.uploadError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "image is too large")
			return
		}
		a.uploadError(w, r, http.StatusBadRequest, "bad_request", "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		a.uploadError(w, r, http.StatusBadRequest, "bad_request", "read upload")
		return
	}
	if len(data) == 0 {
		a.uploadError(w, r, http.StatusBadRequest, "bad_request", "file is empty")
		return
	}
	mime := http.DetectContentType(data)
	if !inspirationTypes[mime] {
		a.uploadError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type", "unsupported image type "+mime)
		return
	}

	name := "inspiration_" + a.now().UTC().Format("20060102T150405") + "_" + safeFilename(header.Filename)
	key, err := a.Uploads.Write(r.Context(), inspirationDir+"/"+name, data)
	if err != nil {
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("store inspiration")
		a.uploadError(w, r, http.StatusInternalServerError, "internal", "failed to store image")
		return
	}
	a.Frame.SetInspiration(domain.ReferenceImage{
		Data:       data,
		MIME:       mime,
		Filename:   name,
		StorageKey: key,
	})
	a.Logger.Info().Str("key", key).Int("bytes", len(data)).Msg("inspiration uploaded")

	if wantsJSON(r) {
		a.json(w, http.StatusOK, inspirationResponse{
			OK:         true,
			Mode:       string(domain.ModeInspiration),
			Filename:   name,
			PreviewURL: "/" + key,
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) uploadError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if wantsJSON(r) {
		a.error(w, status, code, msg)
		return
	}
	http.Error(w, msg, status)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "application/json")
}

// safeFilename keeps the base name with letters, digits, dot, dash and
// underscore.
func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}
