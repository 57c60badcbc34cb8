package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"frameart/internal/domain"
	"frameart/internal/domain/jsoncfg"
	"frameart/internal/scheduler"
)

type promptView struct {
	OK                bool   `json:"ok,omitempty"`
	Mode              string `json:"mode"`
	ManualPrompt      string `json:"manual_prompt"`
	InspirationPrompt string `json:"inspiration_prompt,omitempty"`
	ThemePrompt       string `json:"theme_prompt"`
	CreativePrompt    string `json:"creative_prompt,omitempty"`
	RefreshSeconds    int    `json:"refresh_seconds"`
	ActivePrompt      string `json:"active_prompt"`
	State             string `json:"state"`
}

func promptViewFrom(st scheduler.Status) promptView {
	view := promptView{
		Mode:           string(st.Settings.Mode),
		ManualPrompt:   st.Settings.ManualPrompt,
		ThemePrompt:    st.Settings.Theme,
		RefreshSeconds: int(st.Settings.Interval.Seconds()),
		State:          string(st.State),
	}
	switch st.Settings.Mode {
	case domain.ModeManual:
		view.ActivePrompt = st.Settings.ManualPrompt
	case domain.ModeInspiration:
		view.InspirationPrompt = st.LastPrompt
		view.ActivePrompt = st.LastPrompt
	case domain.ModeCreative:
		view.CreativePrompt = st.LastPrompt
		view.ActivePrompt = st.LastPrompt
	}
	return view
}

func (a *App) PromptGet(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, promptViewFrom(a.Frame.Snapshot()))
}

// PromptSet applies a JSON settings patch. Any save regenerates on the next
// poll.
func (a *App) PromptSet(w http.ResponseWriter, r *http.Request) {
	var patch jsoncfg.SettingsPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&patch); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.applySettings(&patch); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	view := promptViewFrom(a.Frame.Snapshot())
	view.OK = true
	a.json(w, http.StatusOK, view)
}

// SetPromptForm is the form post of the settings page.
func (a *App) SetPromptForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	patch := jsoncfg.SettingsPatch{Prompt: r.PostFormValue("prompt")}
	if r.PostForm.Has("theme_prompt") {
		theme := r.PostFormValue("theme_prompt")
		patch.ThemePrompt = &theme
	}
	if raw := strings.TrimSpace(r.PostFormValue("refresh_seconds")); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "refresh_seconds must be a number", http.StatusBadRequest)
			return
		}
		patch.RefreshSeconds = &secs
	}
	if mode := r.PostFormValue("mode"); mode != "" {
		patch.Mode = &mode
	}
	if err := a.applySettings(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) applySettings(patch *jsoncfg.SettingsPatch) error {
	if err := patch.Normalize(); err != nil {
		return err
	}
	next := a.Frame.Configure(patch.ApplyTo(a.Frame.Settings()))
	a.Frame.ForceRefresh()
	a.Logger.Info().
		Str("mode", string(next.Mode)).
		Dur("interval", next.Interval).
		Msg("settings updated")
	return nil
}
