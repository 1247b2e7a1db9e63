package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/flemzord/chanreset/internal/reset"
)

// IsNotFound reports whether err is a 404 from the REST API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// mapNotFound tags 404s with reset.ErrResourceNotFound so the scheduler can
// retire tasks of channels that no longer exist.
func mapNotFound(err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %w", reset.ErrResourceNotFound, err)
	}
	return err
}
