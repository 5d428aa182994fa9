package rag

import "fmt"

// GenerationError marks a failed extraction-stage completion call. It is
// fatal for the question: with no raw answer there is nothing to summarize.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
