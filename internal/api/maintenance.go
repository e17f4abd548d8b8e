package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListTasks returns the registered maintenance tasks in run order.
func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	if s.maintenance == nil {
		writeUnavailable(w, "maintenance not configured")
		return
	}
	tasks := s.maintenance.Tasks()
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// handleRunTask runs a task now.
//
// Query parameters:
//   - device: device ID, repeatable; omitted means every stored device
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	if s.maintenance == nil {
		writeUnavailable(w, "maintenance not configured")
		return
	}
	taskID := chi.URLParam(r, "task")
	devices := r.URL.Query()["device"]

	if len(devices) == 1 {
		res, err := s.maintenance.Run(r.Context(), taskID, devices[0])
		if res == nil {
			s.writeFault(w, r, err)
			return
		}
		// The result carries the failure; the run itself was accepted.
		writeJSON(w, http.StatusOK, res)
		return
	}

	results, err := s.maintenance.RunForDevices(r.Context(), taskID, devices)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":    taskID,
		"results": results,
		"count":   len(results),
		"failed":  failed,
	})
}
