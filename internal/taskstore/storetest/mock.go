// Package storetest provides test doubles for the taskstore package.
package storetest

import (
	"context"
	"slices"
	"sync"

	"github.com/flemzord/chanreset/internal/taskstore"
)

// MemoryBackend is an in-memory taskstore.PersistentStore with failure injection.
type MemoryBackend struct {
	mu       sync.Mutex
	data     []byte
	writes   int
	attempts int
	failAt   int
	failErr  error
	ReadErr  error
	WriteErr error
}

// Compile-time interface check.
var _ taskstore.PersistentStore = (*MemoryBackend)(nil)

// NewMemoryBackend returns a backend pre-loaded with data (nil means absent).
func NewMemoryBackend(data []byte) *MemoryBackend {
	return &MemoryBackend{data: slices.Clone(data)}
}

// ReadAll implements taskstore.PersistentStore.
func (m *MemoryBackend) ReadAll(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return slices.Clone(m.data), nil
}

// WriteAll implements taskstore.PersistentStore. Like a database backend
// it refuses to write once ctx is done.
func (m *MemoryBackend) WriteAll(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.attempts++
	if m.failAt > 0 && m.attempts == m.failAt {
		return m.failErr
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.data = slices.Clone(data)
	m.writes++
	return nil
}

// SetWriteErr changes the injected write error.
func (m *MemoryBackend) SetWriteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteErr = err
}

// FailWrite makes the nth write attempt from now fail once with err.
func (m *MemoryBackend) FailWrite(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = m.attempts + n
	m.failErr = err
}

// Bytes returns the last persisted blob.
func (m *MemoryBackend) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data)
}

// Writes returns the number of successful writes.
func (m *MemoryBackend) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
