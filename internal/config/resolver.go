package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the configuration file name searched in each candidate directory.
const FileName = "chanreset.yaml"

// ErrNotFound is returned by ResolvePath when no candidate file exists.
var ErrNotFound = errors.New("config: no configuration file found")

// Candidates returns the configuration paths searched when no explicit path
// is given, in priority order.
func Candidates() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "chanreset", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "chanreset", FileName))
	}
	return append(paths, FileName)
}

// ResolvePath returns explicit when set, otherwise the first existing
// candidate.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}
	for _, p := range Candidates() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNotFound
}
