package server

import (
	"context"
	"net/http"
	"time"
)

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	body := map[string]any{"ok": true, "ts": a.now().UTC().Format(time.RFC3339)}
	if err := a.store.Ping(ctx); err != nil {
		a.log.Error("health ping", "err", err)
		body["ok"] = false
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
