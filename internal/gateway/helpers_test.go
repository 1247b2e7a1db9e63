package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/chanreset/internal/reset"
	"github.com/flemzord/chanreset/internal/taskstore"
	"github.com/flemzord/chanreset/internal/taskstore/storetest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeScheduler removes tasks from the backing store and records calls.
type fakeScheduler struct {
	store *taskstore.Store
	err   error

	mu    sync.Mutex
	calls []string
}

func (f *fakeScheduler) Unregister(ctx context.Context, groupID, resourceID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, groupID+"/"+resourceID)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.store.Remove(ctx, groupID, resourceID)
}

func (f *fakeScheduler) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeScheduler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	store    *taskstore.Store
	sched    *fakeScheduler
	registry *prometheus.Registry
	gw       *Gateway
	srv      *httptest.Server
}

func newHarness(t *testing.T, cfg Config, mutate func(*Deps)) *harness {
	t.Helper()

	store := taskstore.New(storetest.NewMemoryBackend(nil))
	ctx := context.Background()
	if _, err := store.Insert(ctx, "g1", "c1", testNow.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Insert(ctx, "g1", "c2", testNow.Add(90*time.Minute)); err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	sched := &fakeScheduler{store: store}
	deps := Deps{
		Tasks:      store,
		Scheduler:  sched,
		Sweep:      func(context.Context) (reset.SweepResult, error) { return reset.SweepResult{Due: 1, Triggered: 1}, nil },
		LastSweep:  func() reset.SweepResult { return reset.SweepResult{Due: 2} },
		Gatherer:   reg,
		Registerer: reg,
		Now:        func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&deps)
	}

	gw := New(cfg, deps, nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	return &harness{store: store, sched: sched, registry: reg, gw: gw, srv: srv}
}

func (h *harness) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, h.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
