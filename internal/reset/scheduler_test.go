package reset_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/chanreset/internal/reset"
	"github.com/flemzord/chanreset/internal/reset/resettest"
	"github.com/flemzord/chanreset/internal/taskstore"
	"github.com/flemzord/chanreset/internal/taskstore/storetest"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	backend  *storetest.MemoryBackend
	store    *taskstore.Store
	client   *resettest.FakeClient
	archiver *resettest.FakeArchiver
	registry *prometheus.Registry
	sched    *reset.Scheduler
}

// newHarness loads persisted into a fresh store, the way a process start does.
func newHarness(t *testing.T, persisted string, channels ...*resettest.Channel) *harness {
	t.Helper()

	var data []byte
	if persisted != "" {
		data = []byte(persisted)
	}
	h := &harness{
		backend:  storetest.NewMemoryBackend(data),
		client:   resettest.NewFakeClient(channels...),
		archiver: &resettest.FakeArchiver{},
		registry: prometheus.NewRegistry(),
	}
	h.store = taskstore.New(h.backend)
	if _, err := h.store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	h.sched = reset.New(reset.Config{
		Store:    h.store,
		Client:   h.client,
		Archiver: h.archiver,
		Policy:   reset.DeadlinePolicy{Intn: func(int) int { return 4 }},
		Metrics:  reset.NewMetrics(h.registry, h.store),
		Now:      func() time.Time { return now },
	})
	t.Cleanup(func() { _ = h.sched.Stop(context.Background()) })
	return h
}

func channel(group, id string, position int) *resettest.Channel {
	return &resettest.Channel{
		Resource: reset.Resource{ID: id, GroupID: group, Name: "chan-" + id, GroupName: "guild-" + group},
		Position: position,
	}
}

func persisted(group, id string, deadline time.Time) string {
	return fmt.Sprintf(`{"%s": [{"channelId": "%s", "resetTime": %d}]}`, group, id, deadline.UnixMilli())
}

func counter(t *testing.T, reg *prometheus.Registry, name, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestScheduler_SweepResetsOverdueTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(-time.Hour)), channel("g1", "c1", 3))

	res := h.sched.Sweep(context.Background())
	if res.Due != 1 || res.Triggered != 1 || res.Failed != 0 {
		t.Fatalf("Sweep() = %+v, want one successful reset", res)
	}

	if got := h.client.Calls(resettest.OpDelete); !slices.Equal(got, []string{"c1"}) {
		t.Errorf("delete calls = %v, want [c1]", got)
	}
	if got := h.client.Calls(resettest.OpClone); !slices.Equal(got, []string{"c1"}) {
		t.Errorf("clone calls = %v, want [c1]", got)
	}

	tasks := h.store.Snapshot()
	if len(tasks) != 1 {
		t.Fatalf("tasks = %+v, want exactly one", tasks)
	}
	if tasks[0].GroupID != "g1" || tasks[0].ResourceID != "9000" {
		t.Errorf("task = %+v, want g1/9000", tasks[0])
	}
	if _, ok := h.store.Get("g1", "c1"); ok {
		t.Error("task for c1 still present")
	}

	clone, ok := h.client.Channel("9000")
	if !ok {
		t.Fatal("clone missing")
	}
	if clone.Position != 3 {
		t.Errorf("clone position = %d, want 3", clone.Position)
	}

	calls := h.archiver.Calls()
	if len(calls) != 1 || calls[0].Meta.ResourceName != "chan-c1" || calls[0].Meta.GroupName != "guild-g1" {
		t.Errorf("archive calls = %+v", calls)
	}
	if v := counter(t, h.registry, "chanreset_resets_total", reset.OutcomeReset); v != 1 {
		t.Errorf("resets_total{reset} = %v, want 1", v)
	}
}

func TestScheduler_RestartSafety(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(-48*time.Hour)), channel("g1", "c1", 0))

	if err := h.sched.Start(); err != nil {
		t.Fatal(err)
	}
	h.sched.Sweep(context.Background())
	if err := h.sched.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	if n := len(h.client.Calls(resettest.OpClone)); n != 1 {
		t.Errorf("clone calls = %d, want exactly 1", n)
	}
	if n := len(h.client.Calls(resettest.OpDelete)); n != 1 {
		t.Errorf("delete calls = %d, want exactly 1", n)
	}
}

func TestScheduler_TimerFiresOverdueTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(-time.Minute)), channel("g1", "c1", 0))
	if err := h.sched.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.store.Get("g1", "9000"); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timer did not reset c1; tasks = %+v", h.store.Snapshot())
}

func TestScheduler_SweepSkipsFutureTasks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(time.Hour)), channel("g1", "c1", 0))

	res := h.sched.Sweep(context.Background())
	if res.Due != 0 || res.Triggered != 0 {
		t.Errorf("Sweep() = %+v, want nothing due", res)
	}
	if len(h.client.Calls(resettest.OpDescribe)) != 0 {
		t.Error("future task should not be touched")
	}
}

func TestScheduler_FailuresLeaveTaskPending(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name       string
		setup      func(h *harness)
		wantClones int
	}{
		{
			name:       "archive",
			setup:      func(h *harness) { h.archiver.Err = boom },
			wantClones: 0,
		},
		{
			name:       "get position",
			setup:      func(h *harness) { h.client.Fail(resettest.OpGetPosition, boom) },
			wantClones: 0,
		},
		{
			name:       "clone",
			setup:      func(h *harness) { h.client.Fail(resettest.OpClone, boom) },
			wantClones: 1,
		},
		{
			name:       "set position",
			setup:      func(h *harness) { h.client.Fail(resettest.OpSetPosition, boom) },
			wantClones: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, persisted("g1", "c1", now.Add(-time.Hour)), channel("g1", "c1", 2))
			tc.setup(h)

			res := h.sched.Sweep(context.Background())
			if res.Failed != 1 {
				t.Fatalf("Sweep() = %+v, want one failure", res)
			}
			if got := len(h.client.Calls(resettest.OpClone)); got != tc.wantClones {
				t.Errorf("clone calls = %d, want %d", got, tc.wantClones)
			}
			if _, ok := h.store.Get("g1", "c1"); !ok {
				t.Error("task for c1 should stay pending")
			}
			if h.store.Len() != 1 {
				t.Errorf("store len = %d, want 1", h.store.Len())
			}
			if _, ok := h.client.Channel("c1"); !ok {
				t.Error("original channel must survive a failed reset")
			}
			if h.client.Len() != 1 {
				t.Errorf("channels = %d, want the original only", h.client.Len())
			}
			if v := counter(t, h.registry, "chanreset_resets_total", reset.OutcomeFailed); v != 1 {
				t.Errorf("resets_total{failed} = %v, want 1", v)
			}
		})
	}
}

func TestScheduler_DeleteFailureRollsBackClone(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(-time.Hour)), channel("g1", "c1", 0))
	failDelete := errors.New("missing permissions")
	h.client.Fail(resettest.OpDelete, failDelete)

	if res := h.sched.Sweep(context.Background()); res.Failed != 1 {
		t.Fatalf("Sweep() = %+v, want one failure", res)
	}
	// The rollback delete also fails here; both attempts are recorded.
	if got := h.client.Calls(resettest.OpDelete); !slices.Equal(got, []string{"c1", "9000"}) {
		t.Errorf("delete calls = %v, want [c1 9000]", got)
	}

	// Once deletes work again the next sweep completes the reset.
	h.client.Fail(resettest.OpDelete, nil)
	if res := h.sched.Sweep(context.Background()); res.Failed != 0 || res.Triggered != 1 {
		t.Fatalf("second Sweep() = %+v, want success", res)
	}
	if _, ok := h.store.Get("g1", "c1"); ok {
		t.Error("c1 should be retired after the retry")
	}
}

func TestScheduler_VanishedResourceRetiresTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "gone", now.Add(-time.Hour)))

	res := h.sched.Sweep(context.Background())
	if res.Failed != 0 || res.Triggered != 1 {
		t.Fatalf("Sweep() = %+v", res)
	}
	if h.store.Len() != 0 {
		t.Errorf("store = %+v, want empty", h.store.Snapshot())
	}
	if len(h.client.Calls(resettest.OpClone)) != 0 {
		t.Error("vanished channel must not be cloned")
	}
	if v := counter(t, h.registry, "chanreset_resets_total", reset.OutcomeVanished); v != 1 {
		t.Errorf("resets_total{vanished} = %v, want 1", v)
	}
}

func TestScheduler_FailureIsIsolatedPerTask(t *testing.T) {
	t.Parallel()

	raw := fmt.Sprintf(`{"g1": [{"channelId": "c1", "resetTime": %d}, {"channelId": "gone", "resetTime": %d}], "g2": [{"channelId": "c2", "resetTime": %d}]}`,
		now.Add(-time.Hour).UnixMilli(), now.Add(-time.Hour).UnixMilli(), now.Add(-time.Hour).UnixMilli())
	h := newHarness(t, raw, channel("g1", "c1", 0), channel("g2", "c2", 0))

	res := h.sched.Sweep(context.Background())
	if res.Due != 3 || res.Triggered != 3 || res.Failed != 0 {
		t.Fatalf("Sweep() = %+v", res)
	}
	if n := len(h.client.Calls(resettest.OpClone)); n != 2 {
		t.Errorf("clone calls = %d, want 2", n)
	}
	if h.store.Len() != 2 {
		t.Errorf("store = %+v, want two replacement tasks", h.store.Snapshot())
	}
}

func TestScheduler_RegisterKeepsExistingDeadline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	ctx := context.Background()

	created, err := h.sched.Register(ctx, "g1", "c1")
	if err != nil || !created {
		t.Fatalf("Register() = %v, %v; want created", created, err)
	}
	first, _ := h.store.Get("g1", "c1")
	if want := now.Add(5 * 24 * time.Hour); !first.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", first.Deadline, want)
	}

	created, err = h.sched.Register(ctx, "g1", "c1")
	if err != nil || created {
		t.Fatalf("second Register() = %v, %v; want no-op", created, err)
	}
	again, _ := h.store.Get("g1", "c1")
	if !again.Deadline.Equal(first.Deadline) {
		t.Errorf("deadline changed from %v to %v", first.Deadline, again.Deadline)
	}
}

func TestScheduler_DeadlineSurvivesRestart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(-time.Hour)), channel("g1", "c1", 0))
	h.sched.Sweep(context.Background())
	before, ok := h.store.Get("g1", "9000")
	if !ok {
		t.Fatal("replacement task missing")
	}

	// A new process with a different random source reads the same bytes.
	restarted := taskstore.New(storetest.NewMemoryBackend(h.backend.Bytes()))
	if _, err := restarted.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	sched := reset.New(reset.Config{
		Store:  restarted,
		Client: h.client,
		Policy: reset.DeadlinePolicy{Intn: func(int) int { return 0 }},
		Now:    func() time.Time { return now.Add(time.Hour) },
	})
	if _, err := sched.Register(context.Background(), "g1", "9000"); err != nil {
		t.Fatal(err)
	}

	after, _ := restarted.Get("g1", "9000")
	if !after.Deadline.Equal(before.Deadline) {
		t.Errorf("deadline after restart = %v, want %v", after.Deadline, before.Deadline)
	}
}

func TestScheduler_Unregister(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(time.Hour)))
	if err := h.sched.Start(); err != nil {
		t.Fatal(err)
	}

	if err := h.sched.Unregister(context.Background(), "g1", "c1"); err != nil {
		t.Fatalf("Unregister() error: %v", err)
	}
	if h.store.Len() != 0 {
		t.Errorf("store len = %d, want 0", h.store.Len())
	}
	if err := h.sched.Unregister(context.Background(), "g1", "c1"); err != nil {
		t.Errorf("Unregister() of absent task error: %v", err)
	}
}

func TestScheduler_PersistenceFailureSurfaces(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.backend.SetWriteErr(errors.New("read-only filesystem"))

	_, err := h.sched.Register(context.Background(), "g1", "c1")
	var pf *taskstore.PersistenceFailure
	if !errors.As(err, &pf) {
		t.Fatalf("Register() error = %v, want *PersistenceFailure", err)
	}
	if h.store.Len() != 0 {
		t.Error("failed insert must not be committed")
	}
}

func TestSweepJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(-time.Hour)), channel("g1", "c1", 0))
	job := &reset.SweepJob{Scheduler: h.sched}

	if job.Name() != reset.SweepJobName || job.Schedule() != "* * * * *" {
		t.Errorf("job = %q %q", job.Name(), job.Schedule())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := job.Last(); got.Triggered != 1 {
		t.Errorf("Last() = %+v, want one triggered", got)
	}
}

// cancelOnDelete cancels the caller's context right after the old channel
// is deleted, like an admin client hanging up mid-sweep.
type cancelOnDelete struct {
	*resettest.FakeClient
	cancel context.CancelFunc
}

func (c *cancelOnDelete) DeleteResource(ctx context.Context, resourceID string) error {
	err := c.FakeClient.DeleteResource(ctx, resourceID)
	c.cancel()
	return err
}

func TestScheduler_CallerCancelDoesNotStrandReplacement(t *testing.T) {
	t.Parallel()

	h := newHarness(t, persisted("g1", "c1", now.Add(-time.Hour)), channel("g1", "c1", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := reset.New(reset.Config{
		Store:  h.store,
		Client: &cancelOnDelete{FakeClient: h.client, cancel: cancel},
		Policy: reset.DeadlinePolicy{Intn: func(int) int { return 4 }},
		Now:    func() time.Time { return now },
	})

	res := sched.Sweep(ctx)
	if res.Triggered != 1 || res.Failed != 0 {
		t.Fatalf("Sweep() = %+v, want one successful reset", res)
	}
	if _, ok := h.store.Get("g1", "9000"); !ok {
		t.Errorf("tasks = %+v, want the replacement g1/9000", h.store.Snapshot())
	}
	if _, ok := h.store.Get("g1", "c1"); ok {
		t.Error("task for the deleted channel still present")
	}
}

func TestScheduler_UnrecordedReplacementIsRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failWrite int
	}{
		{name: "old task removal fails", failWrite: 1},
		{name: "new task insert fails", failWrite: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, persisted("g1", "c1", now.Add(-time.Hour)), channel("g1", "c1", 0))
			ctx := context.Background()
			diskFull := errors.New("disk full")
			h.backend.FailWrite(tt.failWrite, diskFull)

			if res := h.sched.Sweep(ctx); res.Triggered != 1 || res.Failed != 1 {
				t.Fatalf("first Sweep() = %+v, want one failure", res)
			}
			if _, ok := h.client.Channel("c1"); ok {
				t.Fatal("old channel should already be deleted")
			}

			// While the store keeps failing the swap stays queued and the old
			// task is neither reset again nor retired as vanished.
			h.backend.SetWriteErr(diskFull)
			if res := h.sched.Sweep(ctx); res.Recovered != 0 || res.Failed != 1 || res.Triggered != 0 {
				t.Fatalf("second Sweep() = %+v, want the swap still queued", res)
			}
			if n := len(h.client.Calls(resettest.OpDescribe)); n != 1 {
				t.Errorf("describe calls = %d, want 1", n)
			}

			h.backend.SetWriteErr(nil)
			res := h.sched.Sweep(ctx)
			if res.Recovered != 1 || res.Failed != 0 {
				t.Fatalf("third Sweep() = %+v, want the replacement recorded", res)
			}

			tasks := h.store.Snapshot()
			if len(tasks) != 1 || tasks[0].GroupID != "g1" || tasks[0].ResourceID != "9000" {
				t.Errorf("tasks = %+v, want only g1/9000", tasks)
			}
			if n := len(h.client.Calls(resettest.OpClone)); n != 1 {
				t.Errorf("clone calls = %d, want 1", n)
			}
			if v := counter(t, h.registry, "chanreset_resets_total", reset.OutcomeVanished); v != 0 {
				t.Errorf("resets_total{vanished} = %v, want 0", v)
			}

			if res := h.sched.Sweep(ctx); res.Recovered != 0 || res.Failed != 0 {
				t.Errorf("fourth Sweep() = %+v, want nothing left to do", res)
			}
		})
	}
}
