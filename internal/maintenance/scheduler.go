package maintenance

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// Scheduler runs maintenance tasks on cron schedules. Specs include a
// seconds field: "0 0 3 * * *" is 03:00 daily.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  adapter.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID // keyed by task ID
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(service *Service, logger adapter.Logger) *Scheduler {
	if logger == nil {
		logger = adapter.NoopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		service: service,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]cron.EntryID),
	}
}

// Load schedules every configured entry. It fails on the first unknown
// task or invalid spec, leaving earlier entries scheduled.
func (s *Scheduler) Load(schedules []config.ScheduleConfig) error {
	for _, sc := range schedules {
		if err := s.Schedule(sc.Task, sc.Spec, sc.Devices); err != nil {
			return err
		}
	}
	return nil
}

// Schedule adds or replaces the schedule for taskID. An empty devices list
// means every stored device at run time.
func (s *Scheduler) Schedule(taskID, spec string, devices []string) error {
	if _, ok := s.service.Task(taskID); !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	devices = append([]string(nil), devices...)
	id, err := s.cron.AddFunc(spec, func() {
		s.runJob(taskID, devices)
	})
	if err != nil {
		return fmt.Errorf("scheduling %s with %q: %w", taskID, spec, err)
	}
	if prev, exists := s.jobs[taskID]; exists {
		s.cron.Remove(prev)
	}
	s.jobs[taskID] = id
	s.logger.Info("maintenance task scheduled", "task", taskID, "spec", spec, "devices", len(devices))
	return nil
}

// Unschedule removes the schedule for taskID.
func (s *Scheduler) Unschedule(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, exists := s.jobs[taskID]; exists {
		s.cron.Remove(id)
		delete(s.jobs, taskID)
	}
}

// Scheduled returns the number of scheduled tasks.
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) runJob(taskID string, devices []string) {
	results, err := s.service.RunForDevices(s.ctx, taskID, devices)
	if err != nil {
		s.logger.Error("scheduled maintenance failed", "task", taskID, "error", err)
		return
	}
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.logger.Info("scheduled maintenance finished", "task", taskID, "devices", len(results), "failed", failed)
}

// Start begins running schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
