package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/chanreset/internal/cron"
)

// taskJSON is a serializable task with its remaining time.
type taskJSON struct {
	GroupID    string `json:"group_id"`
	ResourceID string `json:"resource_id"`
	Deadline   string `json:"deadline"`
	RemainingS int64  `json:"remaining_seconds"`
	Due        bool   `json:"due"`
}

// handleListTasks returns every persisted task, earliest deadline first.
func (g *Gateway) handleListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		now := g.deps.Now()
		snap := g.deps.Tasks.Snapshot()

		tasks := make([]taskJSON, 0, len(snap))
		for _, t := range snap {
			remaining := t.Deadline.Sub(now)
			tasks = append(tasks, taskJSON{
				GroupID:    t.GroupID,
				ResourceID: t.ResourceID,
				Deadline:   t.Deadline.UTC().Format(time.RFC3339),
				RemainingS: int64(max(remaining, 0) / time.Second),
				Due:        remaining <= 0,
			})
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

// handleDeleteTask unregisters a single task.
func (g *Gateway) handleDeleteTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := chi.URLParam(r, "group")
		resource := chi.URLParam(r, "resource")

		if _, ok := g.deps.Tasks.Get(group, resource); !ok {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		if err := g.deps.Scheduler.Unregister(r.Context(), group, resource); err != nil {
			g.logger.Error("gateway: unregister failed", "group", group, "resource", resource, "error", err)
			http.Error(w, "unregister failed", http.StatusInternalServerError)
			return
		}

		g.logger.Info("gateway: task removed", "group", group, "resource", resource)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSweep runs a sweep and returns its result. A sweep already in
// progress yields 409.
func (g *Gateway) handleSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.deps.Sweep(r.Context())
		switch {
		case errors.Is(err, cron.ErrJobBusy):
			http.Error(w, "sweep already running", http.StatusConflict)
			return
		case err != nil:
			g.logger.Error("gateway: manual sweep failed", "error", err)
			http.Error(w, "sweep failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
