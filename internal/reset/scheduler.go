package reset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/chanreset/internal/taskstore"
)

const tracerName = "github.com/flemzord/chanreset/internal/reset"

// maxArmDelay caps a single timer. Longer waits re-arm on expiry, so a
// deadline days away is re-checked against the store at least daily.
const maxArmDelay = 24 * time.Hour

// Config holds the Scheduler's collaborators.
type Config struct {
	Store  *taskstore.Store
	Client ResourceClient
	// Archiver may be nil, in which case resets skip archival.
	Archiver Archiver
	Policy   DeadlinePolicy
	Metrics  *Metrics
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler arms one timer per pending task and runs the reset operation
// when a deadline passes. The task store stays the source of truth: every
// timer and sweep re-reads it before acting.
type Scheduler struct {
	store    *taskstore.Store
	client   ResourceClient
	archiver Archiver
	policy   DeadlinePolicy
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu       sync.Mutex
	timers   map[taskstore.Key]*armedTimer
	inFlight map[taskstore.Key]struct{}
	// swaps holds resets whose old resource is already replaced but whose
	// task records could not be updated, keyed by the old task.
	swaps   map[taskstore.Key]swap
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Scheduler. The store should already be loaded.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil, nil)
	}
	return &Scheduler{
		store:    cfg.Store,
		client:   cfg.Client,
		archiver: cfg.Archiver,
		policy:   cfg.Policy,
		metrics:  metrics,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      now,
		timers:   make(map[taskstore.Key]*armedTimer),
		inFlight: make(map[taskstore.Key]struct{}),
		swaps:    make(map[taskstore.Key]swap),
	}
}

// Start arms a timer for every task currently in the store. Overdue tasks
// fire immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started = true
	s.mu.Unlock()

	tasks := s.store.Snapshot()
	for _, t := range tasks {
		s.arm(t)
	}
	s.logger.Info("reset: scheduler started", "tasks", len(tasks))
	return nil
}

// Stop disarms every timer and waits for in-flight resets to finish or for
// ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	for key, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, key)
	}
	s.metrics.armed.Set(0)
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("reset: waiting for in-flight resets: %w", ctx.Err())
	}
	cancel()
	s.logger.Info("reset: scheduler stopped")
	return err
}

// Register creates a task with a fresh deadline for the pair unless one
// exists, then arms its timer. It reports whether a task was created. An
// existing task keeps its stored deadline.
func (s *Scheduler) Register(ctx context.Context, groupID, resourceID string) (bool, error) {
	created, err := s.store.Insert(ctx, groupID, resourceID, s.policy.Next(s.now()))
	if err != nil {
		return false, err
	}

	task, ok := s.store.Get(groupID, resourceID)
	if !ok {
		return created, nil
	}
	if created {
		s.logger.Info("reset: channel scheduled",
			"group", groupID,
			"resource", resourceID,
			"deadline", task.Deadline,
		)
	}
	s.arm(task)
	return created, nil
}

// Unregister removes the pair's task, if any, and disarms its timer.
func (s *Scheduler) Unregister(ctx context.Context, groupID, resourceID string) error {
	if err := s.store.Remove(ctx, groupID, resourceID); err != nil {
		return err
	}
	s.disarm(taskstore.Key{GroupID: groupID, ResourceID: resourceID})
	return nil
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Due       int `json:"due"`
	Triggered int `json:"triggered"`
	Failed    int `json:"failed"`
	// Recovered counts replacements registered on retry after an earlier
	// reset could not record them.
	Recovered int `json:"recovered,omitempty"`
}

// Sweep first retries unrecorded replacements, then resets every overdue
// task not already being reset and waits for those resets to finish.
// Failures are isolated per task and counted.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	s.metrics.sweeps.Inc()

	recovered, stuck := s.retrySwaps(ctx)

	due := s.store.Due(s.now())
	res := SweepResult{Due: len(due), Recovered: recovered}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, t := range due {
		ok := s.launch(ctx, t.Key(), func(err error) {
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			wg.Done()
		}, wg.Add)
		if ok {
			res.Triggered++
		}
	}
	wg.Wait()

	res.Failed = failed + stuck
	if res.Due > 0 || recovered > 0 || stuck > 0 {
		s.logger.Info("reset: sweep finished",
			"due", res.Due,
			"triggered", res.Triggered,
			"failed", res.Failed,
			"recovered", res.Recovered,
		)
	}
	return res
}

// swap is a finished platform reset waiting for its task records.
type swap struct {
	old   taskstore.Task
	newID string
}

// deferSwap queues the records update of a reset whose old resource is
// already gone, so the next sweep completes it instead of retiring the
// old task as vanished.
func (s *Scheduler) deferSwap(old taskstore.Task, newID string) {
	s.mu.Lock()
	s.swaps[old.Key()] = swap{old: old, newID: newID}
	s.mu.Unlock()
	s.logger.Error("reset: replacement channel not recorded, will retry on next sweep",
		"group", old.GroupID,
		"resource", old.ResourceID,
		"new_resource", newID,
	)
}

// retrySwaps commits every queued swap and reports how many succeeded and
// how many are still queued.
func (s *Scheduler) retrySwaps(ctx context.Context) (recovered, stuck int) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	pending := make([]swap, 0, len(s.swaps))
	for key, sw := range s.swaps {
		if _, busy := s.inFlight[key]; busy {
			continue
		}
		s.inFlight[key] = struct{}{}
		pending = append(pending, sw)
	}
	s.mu.Unlock()

	for _, sw := range pending {
		err := s.commit(ctx, sw.old, sw.newID)

		s.mu.Lock()
		delete(s.inFlight, sw.old.Key())
		if err == nil {
			delete(s.swaps, sw.old.Key())
		}
		s.mu.Unlock()

		if err != nil {
			stuck++
			s.logger.Error("reset: replacement channel still not recorded",
				"group", sw.old.GroupID,
				"resource", sw.old.ResourceID,
				"new_resource", sw.newID,
				"error", err,
			)
			continue
		}
		recovered++
		s.logger.Info("reset: replacement channel recorded",
			"group", sw.old.GroupID,
			"resource", sw.old.ResourceID,
			"new_resource", sw.newID,
		)
	}
	return recovered, stuck
}

type armedTimer struct {
	timer *time.Timer
}

// arm schedules key's timer for its deadline, replacing any previous one.
func (s *Scheduler) arm(task taskstore.Task) {
	key := task.Key()
	delay := max(task.Deadline.Sub(s.now()), 0)
	delay = min(delay, maxArmDelay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}
	entry := &armedTimer{}
	entry.timer = time.AfterFunc(delay, func() { s.onTimer(key, entry) })
	s.timers[key] = entry
	s.metrics.armed.Set(float64(len(s.timers)))
}

func (s *Scheduler) disarm(key taskstore.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.timer.Stop()
		delete(s.timers, key)
		s.metrics.armed.Set(float64(len(s.timers)))
	}
}

func (s *Scheduler) onTimer(key taskstore.Key, entry *armedTimer) {
	s.mu.Lock()
	if s.timers[key] != entry || !s.started {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.metrics.armed.Set(float64(len(s.timers)))
	ctx := s.ctx
	s.mu.Unlock()

	task, ok := s.store.Get(key.GroupID, key.ResourceID)
	if !ok {
		return
	}
	if task.Deadline.After(s.now()) {
		s.arm(task)
		return
	}
	s.launch(ctx, key, nil, nil)
}

// launch starts the reset of key on its own goroutine unless one is
// already running or the task is gone or not yet due. add, when set, is
// called with 1 before the goroutine starts; done receives the outcome.
func (s *Scheduler) launch(ctx context.Context, key taskstore.Key, done func(error), add func(int)) bool {
	s.mu.Lock()
	if _, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		return false
	}
	if _, queued := s.swaps[key]; queued {
		s.mu.Unlock()
		return false
	}
	// Re-read under the claim: a reset that just finished has already
	// removed its task before releasing the claim.
	task, ok := s.store.Get(key.GroupID, key.ResourceID)
	if !ok || task.Deadline.After(s.now()) {
		s.mu.Unlock()
		return false
	}
	s.inFlight[key] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	if add != nil {
		add(1)
	}
	go func() {
		defer s.wg.Done()
		err := s.reset(ctx, task)
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
		if done != nil {
			done(err)
		}
	}()
	return true
}
