package taskstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/chanreset/internal/taskstore"
)

func TestFileBackend_ReadAbsent(t *testing.T) {
	t.Parallel()

	b := taskstore.NewFileBackend(filepath.Join(t.TempDir(), "tasks.json"))
	data, err := b.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if data != nil {
		t.Errorf("ReadAll() = %q, want nil", data)
	}
}

func TestFileBackend_RoundTripThroughStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	ctx := context.Background()

	s := taskstore.New(taskstore.NewFileBackend(path))
	if _, err := s.Insert(ctx, "g1", "c1", deadline); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	reloaded := taskstore.New(taskstore.NewFileBackend(path))
	got, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got["g1"]) != 1 || !got["g1"][0].Deadline.Equal(deadline) {
		t.Errorf("reloaded = %+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only tasks.json (temp files leaked)", len(entries))
	}
}
