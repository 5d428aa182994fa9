package index

import "errors"

// ErrEmptyIndex is returned when retrieval is attempted against an index
// that holds no chunks, including when the document was never indexed.
var ErrEmptyIndex = errors.New("index contains no chunks")

// IndexingError marks a chunking or embedding failure. The whole document
// fails atomically; a partial index is never exposed.
type IndexingError struct {
	Err error
}

func (e *IndexingError) Error() string {
	return "indexing failed: " + e.Err.Error()
}

func (e *IndexingError) Unwrap() error { return e.Err }
