// Package collaborator holds the shared error contract for external service
// clients (document index, LLM providers). Clients mark failures that are
// worth retrying; the tool registry checks the marker and retries once.
package collaborator

import (
	"errors"
	"fmt"
)

// ErrTransient marks a collaborator failure as retryable: timeouts,
// connection resets, 5xx responses. Permanent failures (4xx, malformed
// payloads) are never marked.
var ErrTransient = errors.New("transient collaborator error")

// MarkTransient wraps err so errors.Is(err, ErrTransient) holds.
// A nil err returns nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err carries the transient marker.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
