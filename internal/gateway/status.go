package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/chanreset/internal/reset"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime    int64              `json:"uptime_seconds"`
	Tasks     int                `json:"tasks"`
	LastSweep *reset.SweepResult `json:"last_sweep,omitempty"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: int64(g.deps.Now().Sub(g.startedAt).Truncate(time.Second) / time.Second),
		}
		if g.deps.Tasks != nil {
			resp.Tasks = len(g.deps.Tasks.Snapshot())
		}
		if g.deps.LastSweep != nil {
			last := g.deps.LastSweep()
			resp.LastSweep = &last
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
