package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/audit"
)

// Firmware job states.
const (
	jobRunning   = "running"
	jobCompleted = "completed"
	jobFailed    = "failed"
)

// maxFirmwareJobs bounds how many jobs are remembered. The oldest finished
// jobs are forgotten first.
const maxFirmwareJobs = 64

// firmwareJob tracks one background firmware update. An update can take
// longer than any HTTP write timeout, so callers poll for the outcome.
type firmwareJob struct {
	ID         string                  `json:"id"`
	DeviceID   string                  `json:"device_id"`
	Status     string                  `json:"status"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	Result     *adapter.FirmwareResult `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

type firmwareJobs struct {
	mu   sync.Mutex
	jobs map[string]*firmwareJob
	now  func() time.Time
}

func newFirmwareJobs() *firmwareJobs {
	return &firmwareJobs{jobs: make(map[string]*firmwareJob), now: time.Now}
}

func (j *firmwareJobs) start(deviceID string) firmwareJob {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.prune()
	job := &firmwareJob{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Status:    jobRunning,
		StartedAt: j.now().UTC(),
	}
	j.jobs[job.ID] = job
	return *job
}

func (j *firmwareJobs) finish(id string, res *adapter.FirmwareResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.jobs[id]
	if !ok {
		return
	}
	done := j.now().UTC()
	job.FinishedAt = &done
	job.Result = res
	switch {
	case err != nil:
		job.Status = jobFailed
		job.Error = err.Error()
	case res == nil || res.Status != adapter.FirmwareCompleted:
		job.Status = jobFailed
	default:
		job.Status = jobCompleted
	}
}

func (j *firmwareJobs) get(id string) (firmwareJob, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return firmwareJob{}, false
	}
	return *job, true
}

// prune drops the oldest finished jobs once the store is full. Caller holds mu.
func (j *firmwareJobs) prune() {
	if len(j.jobs) < maxFirmwareJobs {
		return
	}
	finished := make([]*firmwareJob, 0, len(j.jobs))
	for _, job := range j.jobs {
		if job.FinishedAt != nil {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(a, b int) bool { return finished[a].StartedAt.Before(finished[b].StartedAt) })
	for _, job := range finished {
		if len(j.jobs) < maxFirmwareJobs {
			return
		}
		delete(j.jobs, job.ID)
	}
}

// handleUpdateFirmware starts a firmware update in the background and
// returns 202 with the job to poll.
func (s *Server) handleUpdateFirmware(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req adapter.FirmwareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeBadRequest(w, "firmware url is required")
		return
	}

	job := s.firmware.start(id)
	who := actor(r)

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		res, err := s.adapter.UpdateFirmware(s.ctx, id, req)
		s.recordFirmware(job.ID, id, who, req, res, err)
		s.firmware.finish(job.ID, res, err)
	}()

	w.Header().Set("Location", "/api/v1/devices/"+id+"/firmware/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// handleFirmwareJob reports a firmware job started on this device.
func (s *Server) handleFirmwareJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.firmware.get(chi.URLParam(r, "job"))
	if !ok || job.DeviceID != chi.URLParam(r, "id") {
		writeNotFound(w, "firmware job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) recordFirmware(jobID, deviceID, who string, req adapter.FirmwareRequest, res *adapter.FirmwareResult, err error) {
	entry := audit.Entry{
		Action:   audit.ActionFirmwareUpdate,
		DeviceID: deviceID,
		Actor:    who,
		Outcome:  audit.OutcomeSuccess,
		Details:  map[string]any{"job_id": jobID, "url": req.URL, "backup": req.Backup},
	}
	switch {
	case err != nil:
		entry.Outcome = audit.OutcomeFailure
		entry.Details["error"] = err.Error()
	case res.Status != adapter.FirmwareCompleted:
		entry.Outcome = audit.OutcomeFailure
	}
	if res != nil {
		entry.Details["previous_version"] = res.PreviousVersion
		entry.Details["current_version"] = res.CurrentVersion
	}
	// The server context may already be cancelled at shutdown.
	s.telemetry.Record(context.WithoutCancel(s.ctx), entry)
}
