package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/device"
)

// DefaultConcurrency bounds multi-device runs when none is configured.
const DefaultConcurrency = 4

// DeviceLister enumerates stored devices for runs without an explicit list.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]device.Device, error)
}

// Recorder receives an audit entry per task run. Implemented by the
// telemetry publisher.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Options configures a Service.
type Options struct {
	Devices     DeviceLister
	Recorder    Recorder
	Concurrency int
	Logger      adapter.Logger
}

// Service holds the task registry and runs tasks. Safe for concurrent use.
type Service struct {
	adapter     adapter.Adapter
	devices     DeviceLister
	recorder    Recorder
	concurrency int
	logger      adapter.Logger
	now         func() time.Time

	mu    sync.RWMutex
	tasks map[string]Task
}

// NewService creates a service with no tasks registered. Register
// BuiltinTasks for the standard set.
func NewService(a adapter.Adapter, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = adapter.NoopLogger{}
	}
	return &Service{
		adapter:     a,
		devices:     opts.Devices,
		recorder:    opts.Recorder,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		now:         time.Now,
		tasks:       make(map[string]Task),
	}
}

// Register adds tasks. Duplicate IDs are rejected and nothing is added.
func (s *Service) Register(tasks ...Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || t.Execute == nil {
			return fmt.Errorf("%w: %q needs an id and an execute function", ErrInvalidTask, t.ID)
		}
		if _, exists := s.tasks[t.ID]; exists || seen[t.ID] {
			return fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
		}
		seen[t.ID] = true
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return nil
}

// Tasks returns the registered tasks ordered by priority, then ID.
func (s *Service) Tasks() []Task {
	s.mu.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Task returns the task registered under id.
func (s *Service) Task(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Run checks the task's prerequisites and executes it against deviceID.
// A non-nil Result is returned whenever the task was attempted.
func (s *Service) Run(ctx context.Context, taskID, deviceID string) (*Result, error) {
	task, ok := s.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	start := s.now()
	res, err := s.run(ctx, task, deviceID)
	if res == nil {
		res = &Result{}
	}
	res.TaskID = task.ID
	res.DeviceID = deviceID
	res.StartedAt = start.UTC()
	res.Duration = s.now().Sub(start)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	}

	s.record(ctx, res, err)
	return res, err
}

func (s *Service) run(ctx context.Context, task Task, deviceID string) (*Result, error) {
	if err := s.checkPrerequisites(ctx, task, deviceID); err != nil {
		s.logger.Info("maintenance task skipped", "task", task.ID, "device_id", deviceID, "reason", err)
		return nil, err
	}

	res, err := task.Execute(ctx, s.adapter, deviceID)
	if err != nil {
		s.logger.Warn("maintenance task failed", "task", task.ID, "device_id", deviceID, "error", err)
		return res, fmt.Errorf("running %s on %s: %w", task.ID, deviceID, err)
	}
	s.logger.Debug("maintenance task completed", "task", task.ID, "device_id", deviceID)
	return res, nil
}

func (s *Service) checkPrerequisites(ctx context.Context, task Task, deviceID string) error {
	for _, p := range task.Prerequisites {
		switch p {
		case PrerequisiteReachable:
			if !s.adapter.TestConnection(ctx, deviceID) {
				return fmt.Errorf("%w: %s is not reachable", ErrPrerequisitesNotMet, deviceID)
			}
		case PrerequisiteOnline:
			h, err := s.adapter.GetDeviceHealth(ctx, deviceID)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrPrerequisitesNotMet, err)
			}
			if h.Status != adapter.StatusOnline {
				return fmt.Errorf("%w: %s is %s", ErrPrerequisitesNotMet, deviceID, h.Status)
			}
		default:
			return fmt.Errorf("%w: unknown prerequisite %q", ErrPrerequisitesNotMet, p)
		}
	}
	return nil
}

// RunAll runs every registered task against deviceID in priority order.
// A failing task does not stop the rest.
func (s *Service) RunAll(ctx context.Context, deviceID string) []*Result {
	tasks := s.Tasks()
	out := make([]*Result, 0, len(tasks))
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		res, _ := s.Run(ctx, t.ID, deviceID) //nolint:errcheck // failure is carried in the result
		out = append(out, res)
	}
	return out
}

// RunForDevices runs taskID against each device with bounded concurrency.
// An empty list means every stored device. Results are keyed by device ID.
func (s *Service) RunForDevices(ctx context.Context, taskID string, deviceIDs []string) (map[string]*Result, error) {
	if _, ok := s.Task(taskID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if len(deviceIDs) == 0 {
		if s.devices == nil {
			return map[string]*Result{}, nil
		}
		devs, err := s.devices.ListDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		for _, d := range devs {
			deviceIDs = append(deviceIDs, d.ID)
		}
	}

	var mu sync.Mutex
	out := make(map[string]*Result, len(deviceIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range deviceIDs {
		g.Go(func() error {
			res, _ := s.Run(gctx, taskID, id) //nolint:errcheck // failure is carried in the result
			mu.Lock()
			out[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	return out, nil
}

func (s *Service) record(ctx context.Context, res *Result, err error) {
	if s.recorder == nil {
		return
	}
	outcome := audit.OutcomeSuccess
	if !res.Success {
		outcome = audit.OutcomeFailure
	}
	details := map[string]any{"task": res.TaskID, "duration_ms": res.Duration.Milliseconds()}
	if res.Message != "" {
		details["message"] = res.Message
	}
	if err != nil {
		details["error"] = res.Error
		details["skipped"] = errors.Is(err, ErrPrerequisitesNotMet)
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionMaintenance,
		DeviceID: res.DeviceID,
		Outcome:  outcome,
		Details:  details,
	})
}
