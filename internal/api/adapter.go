package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-access/internal/adapter/factory"
)

// handleAdapterHealth returns the last recorded health of every adapter type.
func (s *Server) handleAdapterHealth(w http.ResponseWriter, _ *http.Request) {
	if s.factory == nil {
		writeUnavailable(w, "adapter factory not configured")
		return
	}
	records := s.factory.HealthRecords()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  s.adapter.Type(),
		"records": nonNilRecords(records),
	})
}

// handleAdapterHealthCheck probes every registered adapter type now.
func (s *Server) handleAdapterHealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.factory == nil {
		writeUnavailable(w, "adapter factory not configured")
		return
	}
	records := s.factory.CheckHealth(r.Context())
	for _, rec := range records {
		//nolint:errcheck // publisher logs its own sink failures
		s.telemetry.PublishAdapterHealth(r.Context(), rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  s.adapter.Type(),
		"records": nonNilRecords(records),
	})
}

// handleAdapterRecommendation returns the adapter type the factory would pick.
func (s *Server) handleAdapterRecommendation(w http.ResponseWriter, _ *http.Request) {
	if s.factory == nil {
		writeUnavailable(w, "adapter factory not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":      s.adapter.Type(),
		"recommended": s.factory.GetRecommendedAdapterType(),
	})
}

func nonNilRecords(records []factory.HealthRecord) []factory.HealthRecord {
	if records == nil {
		return []factory.HealthRecord{}
	}
	return records
}
