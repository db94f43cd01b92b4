package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness and, when a database probe is configured, its
// reachability. A failed probe answers 503 so load balancers drain the node.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if a.Ping == nil {
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		if a.Logger != nil {
			a.Logger.Warn().Err(err).Msg("health: database unreachable")
		}
		a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}
