// Package resettest provides test doubles for the reset package.
package resettest

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/flemzord/chanreset/internal/archive"
	"github.com/flemzord/chanreset/internal/fetch"
	"github.com/flemzord/chanreset/internal/reset"
)

// Operation names accepted by FakeClient.Fail and FakeClient.Calls.
const (
	OpFetch       = "fetch"
	OpDescribe    = "describe"
	OpGetPosition = "get position"
	OpSetPosition = "set position"
	OpClone       = "clone"
	OpDelete      = "delete"
)

// Channel is one resource held by FakeClient.
type Channel struct {
	reset.Resource
	Position int
	// Messages are ordered ascending by id.
	Messages []fetch.Item
}

// FakeClient is an in-memory reset.ResourceClient. Clones get ids counting
// up from 9000.
type FakeClient struct {
	mu       sync.Mutex
	channels map[string]*Channel
	fail     map[string]error
	calls    map[string][]string
	nextID   int
}

// Compile-time interface check.
var _ reset.ResourceClient = (*FakeClient)(nil)

// NewFakeClient returns a client holding channels.
func NewFakeClient(channels ...*Channel) *FakeClient {
	f := &FakeClient{
		channels: make(map[string]*Channel),
		fail:     make(map[string]error),
		calls:    make(map[string][]string),
		nextID:   9000,
	}
	for _, c := range channels {
		f.channels[c.ID] = c
	}
	return f
}

// Fail makes every later call of op return err. A nil err clears it.
func (f *FakeClient) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// Calls returns the resource ids op was called with, in call order.
func (f *FakeClient) Calls(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls[op])
}

// Channel returns a copy of the channel with id.
func (f *FakeClient) Channel(id string) (Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[id]
	if !ok {
		return Channel{}, false
	}
	return *c, true
}

// Len returns the number of channels held.
func (f *FakeClient) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

// record notes the call and returns the channel and the injected error.
func (f *FakeClient) record(op, id string) (*Channel, error) {
	f.calls[op] = append(f.calls[op], id)
	if err := f.fail[op]; err != nil {
		return nil, err
	}
	c, ok := f.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, reset.ErrResourceNotFound)
	}
	return c, nil
}

// FetchPage implements fetch.Source with the platform's semantics: pages
// come newest first, and around pages are centered on the anchor.
func (f *FakeClient) FetchPage(_ context.Context, resourceID string, req fetch.PageRequest) ([]fetch.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.record(OpFetch, resourceID)
	if err != nil {
		return nil, err
	}

	msgs := c.Messages
	anchor, _ := strconv.ParseUint(req.Anchor, 10, 64)
	pos := func(pred func(id uint64) bool) int {
		return slices.IndexFunc(msgs, func(it fetch.Item) bool {
			id, _ := strconv.ParseUint(it.ID, 10, 64)
			return pred(id)
		})
	}

	var window []fetch.Item
	switch req.Mode {
	case fetch.Before:
		end := pos(func(id uint64) bool { return id >= anchor })
		if end < 0 {
			end = len(msgs)
		}
		window = msgs[max(0, end-req.Limit):end]
	case fetch.After:
		start := pos(func(id uint64) bool { return id > anchor })
		if start < 0 {
			start = len(msgs)
		}
		window = msgs[start:min(len(msgs), start+req.Limit)]
	case fetch.Around:
		center := pos(func(id uint64) bool { return id >= anchor })
		if center < 0 {
			center = len(msgs)
		}
		start := max(0, center-req.Limit/2)
		window = msgs[start:min(len(msgs), start+req.Limit)]
	default:
		window = msgs[max(0, len(msgs)-req.Limit):]
	}

	out := slices.Clone(window)
	slices.Reverse(out)
	return out, nil
}

// Describe implements reset.ResourceClient.
func (f *FakeClient) Describe(_ context.Context, resourceID string) (reset.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.record(OpDescribe, resourceID)
	if err != nil {
		return reset.Resource{}, err
	}
	return c.Resource, nil
}

// GetPosition implements reset.ResourceClient.
func (f *FakeClient) GetPosition(_ context.Context, resourceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.record(OpGetPosition, resourceID)
	if err != nil {
		return 0, err
	}
	return c.Position, nil
}

// SetPosition implements reset.ResourceClient.
func (f *FakeClient) SetPosition(_ context.Context, resourceID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.record(OpSetPosition, resourceID)
	if err != nil {
		return err
	}
	c.Position = position
	return nil
}

// CloneResource implements reset.ResourceClient. The clone has no messages
// and is appended at the end of the group.
func (f *FakeClient) CloneResource(_ context.Context, resourceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.record(OpClone, resourceID)
	if err != nil {
		return "", err
	}
	id := strconv.Itoa(f.nextID)
	f.nextID++

	res := c.Resource
	res.ID = id
	f.channels[id] = &Channel{Resource: res, Position: len(f.channels)}
	return id, nil
}

// DeleteResource implements reset.ResourceClient.
func (f *FakeClient) DeleteResource(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.record(OpDelete, resourceID); err != nil {
		return err
	}
	delete(f.channels, resourceID)
	return nil
}

// ArchiveCall records one FakeArchiver.Archive call.
type ArchiveCall struct {
	GroupID    string
	ResourceID string
	Meta       archive.Metadata
}

// FakeArchiver is a reset.Archiver that records calls.
type FakeArchiver struct {
	mu    sync.Mutex
	Err   error
	calls []ArchiveCall
}

// Compile-time interface check.
var _ reset.Archiver = (*FakeArchiver)(nil)

// Archive implements reset.Archiver.
func (a *FakeArchiver) Archive(_ context.Context, groupID, resourceID string, meta archive.Metadata) (archive.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ArchiveCall{GroupID: groupID, ResourceID: resourceID, Meta: meta})
	if a.Err != nil {
		return archive.Result{}, a.Err
	}
	return archive.Result{}, nil
}

// Calls returns the recorded calls.
func (a *FakeArchiver) Calls() []ArchiveCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}
