package models

// Chunk is a bounded contiguous slice of document text, the unit of retrieval.
// Immutable once created; Position is the order the chunker produced it in.
type Chunk struct {
	Content  string            `json:"content"`
	Position int               `json:"position"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RetrievalResult pairs a chunk with its similarity to a query.
// Higher similarity means a better match, whatever the backend's metric.
type RetrievalResult struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity_score"`
}

// Usage holds token accounting for a single completion call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AnswerUsage nests per-stage usage so callers can attribute cost per stage.
type AnswerUsage struct {
	Extraction    Usage `json:"extraction"`
	Summarization Usage `json:"summarization"`
}

// AnswerRecord is the result of answering one question.
// If summarization failed but extraction succeeded, SummarizedAnswer carries
// the raw answer and SummarizationError says why; the record is not an error.
type AnswerRecord struct {
	Question           string      `json:"question"`
	RawAnswer          string      `json:"raw_answer,omitempty"`
	SummarizedAnswer   string      `json:"summarized_answer,omitempty"`
	Model              string      `json:"model,omitempty"`
	Usage              AnswerUsage `json:"usage"`
	ContextChars       int         `json:"context_length"`
	ChunksRetrieved    int         `json:"chunks_retrieved"`
	SummarizationError string      `json:"summarization_error,omitempty"`
	Error              bool        `json:"error"`
	ErrorMessage       string      `json:"error_message,omitempty"`
}

// IndexStats describes an indexed document.
type IndexStats struct {
	NumChunks    int `json:"num_chunks"`
	TotalChars   int `json:"total_characters"`
	AvgChunkSize int `json:"avg_chunk_size"`
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// IndexSummary is returned by the indexing operation.
type IndexSummary struct {
	Identity      string     `json:"identity"`
	FreshlyBuilt  bool       `json:"freshly_built"`
	Stats         IndexStats `json:"stats"`
	ElapsedMillis int64      `json:"elapsed_ms"`
}

// BatchStats aggregates a batch run; exposed alongside the records,
// not embedded in them.
type BatchStats struct {
	TotalQuestions    int        `json:"total_questions"`
	TotalContextChars int        `json:"total_context_length"`
	AvgContextChars   int        `json:"avg_context_per_question"`
	Index             IndexStats `json:"index_stats"`
}

// DocumentMetadata is what the document reader knows about a file.
type DocumentMetadata struct {
	FileName string `json:"file_name"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	NumPages int    `json:"num_pages"`
	FileSize int64  `json:"file_size"`
}

// Document is the reader's output: full page-tagged text plus metadata.
type Document struct {
	FullText string
	Metadata DocumentMetadata
}

// ToMap flattens metadata into the string map attached to chunks.
func (m DocumentMetadata) ToMap() map[string]string {
	out := map[string]string{
		"file_name": m.FileName,
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.Author != "" {
		out["author"] = m.Author
	}
	return out
}
