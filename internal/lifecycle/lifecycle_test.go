package lifecycle

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type call struct {
	op, group, resource string
}

type recordingRegistrar struct {
	mu       sync.Mutex
	calls    []call
	tasks    map[[2]string]bool
	failWith error
}

func newRegistrar() *recordingRegistrar {
	return &recordingRegistrar{tasks: make(map[[2]string]bool)}
}

func (r *recordingRegistrar) Register(_ context.Context, g, res string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"register", g, res})
	if r.failWith != nil {
		return false, r.failWith
	}
	key := [2]string{g, res}
	if r.tasks[key] {
		return false, nil
	}
	r.tasks[key] = true
	return true, nil
}

func (r *recordingRegistrar) Unregister(_ context.Context, g, res string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"unregister", g, res})
	delete(r.tasks, [2]string{g, res})
	return nil
}

func (r *recordingRegistrar) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func m(group, parent string) *Membership {
	return &Membership{GroupID: group, ParentID: parent}
}

func TestAdapter_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		want []call
	}{
		{
			name: "created in managed category",
			ev:   Event{ResourceID: "c1", Current: m("g1", "cat")},
			want: []call{{"register", "g1", "c1"}},
		},
		{
			name: "created elsewhere",
			ev:   Event{ResourceID: "c1", Current: m("g1", "other")},
			want: nil,
		},
		{
			name: "created without parent",
			ev:   Event{ResourceID: "c1", Current: m("g1", "")},
			want: nil,
		},
		{
			name: "moved into managed category",
			ev:   Event{ResourceID: "c1", Previous: m("g1", "other"), Current: m("g1", "cat")},
			want: []call{{"register", "g1", "c1"}},
		},
		{
			name: "moved out of managed category",
			ev:   Event{ResourceID: "c1", Previous: m("g1", "cat"), Current: m("g1", "other")},
			want: []call{{"unregister", "g1", "c1"}},
		},
		{
			name: "moved between managed categories",
			ev:   Event{ResourceID: "c1", Previous: m("g1", "cat"), Current: m("g1", "cat2")},
			want: []call{{"register", "g1", "c1"}},
		},
		{
			name: "moved to another group",
			ev:   Event{ResourceID: "c1", Previous: m("g1", "cat"), Current: m("g2", "cat")},
			want: []call{{"unregister", "g1", "c1"}, {"register", "g2", "c1"}},
		},
		{
			name: "deleted",
			ev:   Event{ResourceID: "c1", Previous: m("g1", "cat")},
			want: []call{{"unregister", "g1", "c1"}},
		},
		{
			name: "deleted unmanaged",
			ev:   Event{ResourceID: "c1", Previous: m("g1", "other")},
			want: nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reg := newRegistrar()
			a := NewAdapter(reg, []string{"cat", "cat2"}, nil)
			if err := a.Handle(context.Background(), tc.ev); err != nil {
				t.Fatalf("Handle() error: %v", err)
			}
			if got := reg.snapshot(); !slices.Equal(got, tc.want) {
				t.Errorf("calls = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAdapter_EnterTwiceKeepsOneTask(t *testing.T) {
	t.Parallel()

	reg := newRegistrar()
	a := NewAdapter(reg, []string{"cat"}, nil)
	ev := Event{ResourceID: "c1", Current: m("g1", "cat")}
	for range 3 {
		if err := a.Handle(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	if len(reg.tasks) != 1 {
		t.Errorf("tasks = %v, want one", reg.tasks)
	}
}

func TestAdapter_RegisterErrorIsReturned(t *testing.T) {
	t.Parallel()

	reg := newRegistrar()
	reg.failWith = errors.New("disk full")
	a := NewAdapter(reg, []string{"cat"}, nil)

	err := a.Handle(context.Background(), Event{ResourceID: "c1", Current: m("g1", "cat")})
	if !errors.Is(err, reg.failWith) {
		t.Fatalf("Handle() error = %v, want %v", err, reg.failWith)
	}
}

func TestConsumer_DrainsUntilClosed(t *testing.T) {
	t.Parallel()

	reg := newRegistrar()
	events := make(chan Event, 4)
	c := NewConsumer(NewAdapter(reg, []string{"cat"}, nil), events)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	events <- Event{ResourceID: "c1", Current: m("g1", "cat")}
	events <- Event{ResourceID: "c2", Current: m("g1", "cat")}
	events <- Event{ResourceID: "c1", Previous: m("g1", "cat")}
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		t.Fatal("consumer did not exit after the stream closed")
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if len(reg.tasks) != 1 || !reg.tasks[[2]string{"g1", "c2"}] {
		t.Errorf("tasks = %v, want only g1/c2", reg.tasks)
	}
}

func TestConsumer_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewConsumer(NewAdapter(newRegistrar(), nil, nil), make(chan Event))
	_ = c.Start()
	for range 2 {
		if err := c.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() error: %v", err)
		}
	}
}
