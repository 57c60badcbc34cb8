package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	st := a.Frame.Snapshot()
	a.json(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"state":   string(st.State),
		"current": st.Current.String(),
	})
}
