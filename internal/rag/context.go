package rag

import (
	"fmt"
	"strings"

	"docqa/internal/models"
)

// BuildContext concatenates retrieved chunks, in the given ranked order, into
// one prompt-ready string. Each chunk gets a stable section label so the
// model can cite where an answer came from. Empty input yields an empty
// string; whether that is actionable is the caller's call.
func BuildContext(results []models.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[%s %d]\n%s", models.SectionLabel, i+1, r.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}
