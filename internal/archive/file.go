package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/klauspost/compress/gzip"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// maxNameAttempts bounds the numbered suffixes tried when a transcript
// file name is already taken.
const maxNameAttempts = 100

// FileSink writes each transcript to <Dir>/<group>/<resource>-<unix ms>.txt,
// gzip-compressed with a .gz suffix when Compress is set. An existing file
// is never overwritten; a numbered suffix is added instead.
type FileSink struct {
	Dir      string
	Compress bool
	Now      func() time.Time
}

// Compile-time interface check.
var _ Sink = (*FileSink)(nil)

// Deliver implements Sink.
func (f *FileSink) Deliver(_ context.Context, groupID, resourceID string, transcript []byte, _ Metadata) error {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	dir := filepath.Join(f.Dir, sanitize(groupID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("archive: create directory %s: %w", dir, err)
	}

	out, path, err := f.create(dir, fmt.Sprintf("%s-%d", sanitize(resourceID), now().UnixMilli()))
	if err != nil {
		return err
	}

	if f.Compress {
		zw := gzip.NewWriter(out)
		zw.Name = resourceID + ".txt"
		if _, err := zw.Write(transcript); err != nil {
			_ = out.Close()
			return fmt.Errorf("archive: compress %s: %w", path, err)
		}
		if err := zw.Close(); err != nil {
			_ = out.Close()
			return fmt.Errorf("archive: compress %s: %w", path, err)
		}
	} else if _, err := out.Write(transcript); err != nil {
		_ = out.Close()
		return fmt.Errorf("archive: write %s: %w", path, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", path, err)
	}
	return nil
}

// create exclusively opens base.txt in dir, or base-1.txt, base-2.txt and
// so on when the name is taken.
func (f *FileSink) create(dir, base string) (*os.File, string, error) {
	ext := ".txt"
	if f.Compress {
		ext += ".gz"
	}
	for i := range maxNameAttempts {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("archive: create %s: %w", path, err)
		}
		return out, path, nil
	}
	return nil, "", fmt.Errorf("archive: create %s: %d names already taken", filepath.Join(dir, base+ext), maxNameAttempts)
}

func sanitize(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
