package cache

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no cache entry exists for an identity.
var ErrNotFound = errors.New("no cached index for identity")

// ReadError marks a cache entry that exists but cannot be deserialized
// (corrupt or incompatible format). The cache never silently falls back;
// the caller may recover by forcing a rebuild.
type ReadError struct {
	Identity string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading cached index for %q: %v", e.Identity, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
