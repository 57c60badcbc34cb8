package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"frameart/internal/domain/jsoncfg"
)

//go:embed templates/*.html
var templateFS embed.FS

const displayPoll = time.Minute

func loadPages() (*template.Template, error) {
	funcs := template.FuncMap{
		"fmtTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}
	return template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

type settingsPage struct {
	Mode              string
	ManualPrompt      string
	Theme             string
	RefreshSeconds    int
	MinRefreshSeconds int
	InspirationURL    string
	ActivePrompt      string
	State             string
	Current           string
	CurrentAt         time.Time
	NextRefreshAt     time.Time
	LastError         string
}

// SettingsPage renders the operator form.
func (a *App) SettingsPage(w http.ResponseWriter, r *http.Request) {
	st := a.Frame.Snapshot()
	view := promptViewFrom(st)
	page := settingsPage{
		Mode:              view.Mode,
		ManualPrompt:      view.ManualPrompt,
		Theme:             view.ThemePrompt,
		RefreshSeconds:    view.RefreshSeconds,
		MinRefreshSeconds: jsoncfg.MinRefreshSeconds,
		ActivePrompt:      view.ActivePrompt,
		State:             string(st.State),
		Current:           st.Current.String(),
		CurrentAt:         st.CurrentAt,
		NextRefreshAt:     st.NextRefreshAt,
		LastError:         st.LastError,
	}
	if st.Reference != nil && st.Reference.StorageKey != "" {
		page.InspirationURL = "/" + st.Reference.StorageKey
	}
	a.render(w, "settings", page)
}

// Display is the fullscreen viewer run by the frame's browser.
func (a *App) Display(w http.ResponseWriter, r *http.Request) {
	a.render(w, "display", map[string]any{"PollMillis": displayPoll.Milliseconds()})
}

func (a *App) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := a.pages.ExecuteTemplate(w, name, data); err != nil {
		a.Logger.Error().Err(err).Str("template", name).Msg("render page")
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}
