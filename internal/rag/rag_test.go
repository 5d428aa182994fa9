package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/cache"
	"docqa/internal/index"
	"docqa/internal/llmservice"
	"docqa/internal/models"
	"docqa/internal/vectordb"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

// stubVec ranks chunks by position: earlier chunks score higher.
type stubVec struct{ n int }

func (v *stubVec) Add(_ context.Context, entries []vectordb.Entry) error {
	v.n += len(entries)
	return nil
}

func (v *stubVec) Search(_ context.Context, _ []float32, k int) ([]vectordb.Hit, error) {
	if k > v.n {
		k = v.n
	}
	hits := make([]vectordb.Hit, k)
	for i := range hits {
		hits[i] = vectordb.Hit{Position: i, Similarity: float32(v.n - i)}
	}
	return hits, nil
}

func buildTestIndex(t *testing.T, contents ...string) *index.DocumentIndex {
	t.Helper()
	chunks := make([]models.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = models.Chunk{Content: c, Position: i}
	}
	idx, err := index.Build(context.Background(), chunks, stubEmbedder{}, &stubVec{}, 100, 20)
	require.NoError(t, err)
	return idx
}

// fakeIndexer treats every non-empty line of text as one chunk.
type fakeIndexer struct {
	indexes map[string]*index.DocumentIndex
	builds  int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{indexes: make(map[string]*index.DocumentIndex)}
}

func (f *fakeIndexer) LoadOrBuild(ctx context.Context, identity, text string, _ map[string]string, force bool) (*index.DocumentIndex, bool, error) {
	if idx, ok := f.indexes[identity]; ok && !force {
		return idx, false, nil
	}
	f.builds++
	var chunks []models.Chunk
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{Content: line, Position: len(chunks)})
	}
	idx, err := index.Build(ctx, chunks, stubEmbedder{}, &stubVec{}, 100, 20)
	if err != nil {
		return nil, false, err
	}
	f.indexes[identity] = idx
	return idx, true, nil
}

func (f *fakeIndexer) Load(_ context.Context, identity string) (*index.DocumentIndex, error) {
	if idx, ok := f.indexes[identity]; ok {
		return idx, nil
	}
	return nil, cache.ErrNotFound
}

func (f *fakeIndexer) Remove(_ context.Context, identity string) error {
	if _, ok := f.indexes[identity]; !ok {
		return cache.ErrNotFound
	}
	delete(f.indexes, identity)
	return nil
}

// fakeLLM dispatches on the system prompt to tell the two stages apart.
type fakeLLM struct {
	extractErr       error
	summErr          error
	failWhenContains string
	extractionUsers  []string
	summaryUsers     []string
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (*llmservice.Completion, error) {
	switch system {
	case models.ExtractionSystemPrompt:
		f.extractionUsers = append(f.extractionUsers, user)
		if f.extractErr != nil {
			return nil, f.extractErr
		}
		if f.failWhenContains != "" && strings.Contains(user, f.failWhenContains) {
			return nil, errors.New("model unavailable")
		}
		return &llmservice.Completion{
			Text:  "RAW ANSWER",
			Usage: models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	case models.SummarizationSystemPrompt:
		f.summaryUsers = append(f.summaryUsers, user)
		if f.summErr != nil {
			return nil, f.summErr
		}
		return &llmservice.Completion{
			Text:  "CLEAN ANSWER",
			Usage: models.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		}, nil
	}
	return nil, fmt.Errorf("unexpected system prompt: %q", system)
}

func (f *fakeLLM) Model() string { return "test-model" }

func newTestRAG(t *testing.T, llm *fakeLLM, contents ...string) (*RAG, *fakeIndexer) {
	t.Helper()
	indexer := newFakeIndexer()
	r := New(indexer, stubEmbedder{}, llm, 5)
	if len(contents) > 0 {
		_, err := r.Index(context.Background(), "doc", strings.Join(contents, "\n"), nil, false)
		require.NoError(t, err)
	}
	return r, indexer
}

func TestBuildContext(t *testing.T) {
	results := []models.RetrievalResult{
		{Chunk: models.Chunk{Content: "first passage"}, Similarity: 0.9},
		{Chunk: models.Chunk{Content: "second passage"}, Similarity: 0.4},
	}
	got := BuildContext(results)
	want := "[Relevant Section 1]\nfirst passage\n\n[Relevant Section 2]\nsecond passage"
	assert.Equal(t, want, got)

	assert.Empty(t, BuildContext(nil))
}

func TestIndex_RegistersDocument(t *testing.T) {
	r, indexer := newTestRAG(t, &fakeLLM{})

	summary, err := r.Index(context.Background(), "report", "alpha\nbeta", nil, false)
	require.NoError(t, err)
	assert.True(t, summary.FreshlyBuilt)
	assert.Equal(t, 2, summary.Stats.NumChunks)
	assert.Contains(t, r.Identities(), "report")

	summary, err = r.Index(context.Background(), "report", "alpha\nbeta", nil, false)
	require.NoError(t, err)
	assert.False(t, summary.FreshlyBuilt)
	assert.Equal(t, 1, indexer.builds)
}

func TestAnswerOne_TwoStage(t *testing.T) {
	llm := &fakeLLM{}
	r, _ := newTestRAG(t, llm, "the capital is paris", "unrelated trivia", "more filler")

	rec, err := r.AnswerOne(context.Background(), "doc", "what is the capital?", 2)
	require.NoError(t, err)

	assert.Equal(t, "what is the capital?", rec.Question)
	assert.Equal(t, "RAW ANSWER", rec.RawAnswer)
	assert.Equal(t, "CLEAN ANSWER", rec.SummarizedAnswer)
	assert.Equal(t, "test-model", rec.Model)
	assert.False(t, rec.Error)
	assert.Empty(t, rec.SummarizationError)
	assert.Equal(t, 2, rec.ChunksRetrieved)
	assert.Greater(t, rec.ContextChars, 0)
	assert.Equal(t, 15, rec.Usage.Extraction.TotalTokens)
	assert.Equal(t, 5, rec.Usage.Summarization.TotalTokens)

	// The extraction prompt carries the retrieved context and the question.
	require.Len(t, llm.extractionUsers, 1)
	assert.Contains(t, llm.extractionUsers[0], "[Relevant Section 1]")
	assert.Contains(t, llm.extractionUsers[0], "the capital is paris")
	assert.Contains(t, llm.extractionUsers[0], "what is the capital?")

	// The summarization prompt carries the raw answer, not the context.
	require.Len(t, llm.summaryUsers, 1)
	assert.Contains(t, llm.summaryUsers[0], "RAW ANSWER")
	assert.NotContains(t, llm.summaryUsers[0], "[Relevant Section 1]")
}

func TestAnswerOne_DefaultTopK(t *testing.T) {
	indexer := newFakeIndexer()
	r := New(indexer, stubEmbedder{}, &fakeLLM{}, 2)
	_, err := r.Index(context.Background(), "doc", "a\nb\nc\nd", nil, false)
	require.NoError(t, err)

	rec, err := r.AnswerOne(context.Background(), "doc", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ChunksRetrieved)
}

func TestAnswerOne_SummarizationDegrades(t *testing.T) {
	llm := &fakeLLM{summErr: errors.New("timeout")}
	r, _ := newTestRAG(t, llm, "some content")

	rec, err := r.AnswerOne(context.Background(), "doc", "q", 1)
	require.NoError(t, err, "a summarization failure must not fail the question")

	assert.Equal(t, "RAW ANSWER", rec.RawAnswer)
	assert.Equal(t, "RAW ANSWER", rec.SummarizedAnswer, "raw answer stands in for the summary")
	assert.Contains(t, rec.SummarizationError, "timeout")
	assert.False(t, rec.Error)
	assert.Zero(t, rec.Usage.Summarization.TotalTokens)
}

func TestAnswerOne_ExtractionFails(t *testing.T) {
	llm := &fakeLLM{extractErr: errors.New("boom")}
	r, _ := newTestRAG(t, llm, "some content")

	_, err := r.AnswerOne(context.Background(), "doc", "q", 1)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "extraction", genErr.Stage)
}

func TestAnswerOne_UnknownDocument(t *testing.T) {
	r, _ := newTestRAG(t, &fakeLLM{}, "content")

	_, err := r.AnswerOne(context.Background(), "never-indexed", "q", 1)
	assert.ErrorIs(t, err, index.ErrEmptyIndex)
}

func TestRemove(t *testing.T) {
	r, indexer := newTestRAG(t, &fakeLLM{}, "some content")

	require.NoError(t, r.Remove(context.Background(), "doc"))
	assert.NotContains(t, r.Identities(), "doc")
	assert.NotContains(t, indexer.indexes, "doc")

	// Questions against a removed document fail like an unindexed one.
	_, err := r.AnswerOne(context.Background(), "doc", "q", 1)
	assert.ErrorIs(t, err, index.ErrEmptyIndex)
}

func TestRemove_UnknownDocument(t *testing.T) {
	r, _ := newTestRAG(t, &fakeLLM{}, "some content")

	err := r.Remove(context.Background(), "never-indexed")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestAnswerOne_LoadsFromIndexerAfterRestart(t *testing.T) {
	indexer := newFakeIndexer()
	_, _, err := indexer.LoadOrBuild(context.Background(), "doc", "persisted content", nil, false)
	require.NoError(t, err)

	// Fresh pipeline with an empty registry, same indexer.
	r := New(indexer, stubEmbedder{}, &fakeLLM{}, 5)
	rec, err := r.AnswerOne(context.Background(), "doc", "q", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ChunksRetrieved)
}

func TestAnswerMany_NeverAborts(t *testing.T) {
	llm := &fakeLLM{failWhenContains: "poison"}
	r, _ := newTestRAG(t, llm, "alpha content", "beta content")

	questions := []string{"first question", "poison question", "third question"}
	records, stats, err := r.AnswerMany(context.Background(), "doc", questions, 2)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "first question", records[0].Question)
	assert.False(t, records[0].Error)
	assert.Equal(t, "CLEAN ANSWER", records[0].SummarizedAnswer)

	assert.Equal(t, "poison question", records[1].Question)
	assert.True(t, records[1].Error)
	assert.NotEmpty(t, records[1].ErrorMessage)
	assert.Empty(t, records[1].RawAnswer)

	assert.Equal(t, "third question", records[2].Question)
	assert.False(t, records[2].Error)

	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.TotalQuestions)
	expectedContext := records[0].ContextChars + records[2].ContextChars
	assert.Equal(t, expectedContext, stats.TotalContextChars)
	assert.Equal(t, expectedContext/3, stats.AvgContextChars)
	assert.Equal(t, 2, stats.Index.NumChunks)
}

func TestAnswerMany_EmptyBatch(t *testing.T) {
	r, _ := newTestRAG(t, &fakeLLM{}, "content")

	records, stats, err := r.AnswerMany(context.Background(), "doc", nil, 1)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, stats.TotalQuestions)
	assert.Equal(t, 0, stats.AvgContextChars)
}

func TestStats(t *testing.T) {
	r, _ := newTestRAG(t, &fakeLLM{}, "aaaa", "bbbbbb")

	stats, err := r.Stats(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumChunks)
	assert.Equal(t, 10, stats.TotalChars)
}
