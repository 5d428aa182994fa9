package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
)

type countingEmbedder struct {
	docCalls   int
	queryCalls int
}

func (f *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.docCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i + 1), 1}
	}
	return out, nil
}

func (f *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queryCalls++
	return []float32{float32(len(text)), 1, 1}, nil
}

func newTestCache(t *testing.T) (*Cache, *countingEmbedder) {
	t.Helper()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	splitter, err := chunker.New(40, 10)
	require.NoError(t, err)
	emb := &countingEmbedder{}
	return New(store, splitter, emb), emb
}

const sampleText = "The first paragraph of the report.\n\nThe second paragraph of the report.\n\nA closing remark."

func TestLoadOrBuild_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, emb := newTestCache(t)
	meta := map[string]string{"file_name": "report.pdf"}

	built, fresh, err := c.LoadOrBuild(ctx, "report", sampleText, meta, false)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, 1, emb.docCalls)
	require.NotEmpty(t, built.Chunks())

	loaded, fresh, err := c.LoadOrBuild(ctx, "report", sampleText, meta, false)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, 1, emb.docCalls, "a cache hit must not re-embed")

	require.Len(t, loaded.Chunks(), len(built.Chunks()))
	for i, ch := range built.Chunks() {
		assert.Equal(t, ch.Content, loaded.Chunks()[i].Content)
		assert.Equal(t, ch.Position, loaded.Chunks()[i].Position)
	}
	assert.Equal(t, built.Embeddings(), loaded.Embeddings())
	assert.Equal(t, built.ChunkSize(), loaded.ChunkSize())
	assert.Equal(t, built.ChunkOverlap(), loaded.ChunkOverlap())
}

func TestLoadOrBuild_LoadedIndexRetrieves(t *testing.T) {
	ctx := context.Background()
	c, emb := newTestCache(t)

	_, _, err := c.LoadOrBuild(ctx, "report", sampleText, nil, false)
	require.NoError(t, err)

	loaded, fresh, err := c.LoadOrBuild(ctx, "report", sampleText, nil, false)
	require.NoError(t, err)
	require.False(t, fresh)

	results, err := loaded.Retrieve(ctx, "closing remark", 2, emb)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLoadOrBuild_ForceRebuilds(t *testing.T) {
	ctx := context.Background()
	c, emb := newTestCache(t)

	_, _, err := c.LoadOrBuild(ctx, "report", sampleText, nil, false)
	require.NoError(t, err)

	_, fresh, err := c.LoadOrBuild(ctx, "report", sampleText, nil, true)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, 2, emb.docCalls)
}

func TestLoadOrBuild_StaleHashStillLoads(t *testing.T) {
	ctx := context.Background()
	c, emb := newTestCache(t)

	built, _, err := c.LoadOrBuild(ctx, "report", sampleText, nil, false)
	require.NoError(t, err)

	// Same identity, different content: the cached entry wins until a forced
	// rebuild.
	loaded, fresh, err := c.LoadOrBuild(ctx, "report", "entirely different text", nil, false)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, 1, emb.docCalls)
	assert.Len(t, loaded.Chunks(), len(built.Chunks()))
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	_, _, err := c.LoadOrBuild(ctx, "report", sampleText, nil, false)
	require.NoError(t, err)

	require.NoError(t, c.Remove(ctx, "report"))
	_, err = c.Load(ctx, "report")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, c.Remove(ctx, "report"), ErrNotFound)
}

func TestFSStore_DeleteAbsentEntry(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete("never-written"))
}

func TestLoad_NotFound(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.Load(context.Background(), "never-indexed")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	splitter, err := chunker.New(40, 10)
	require.NoError(t, err)
	c := New(store, splitter, &countingEmbedder{})

	require.NoError(t, store.Write("broken", []byte("{not json")))

	var readErr *ReadError
	_, err = c.Load(ctx, "broken")
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "broken", readErr.Identity)

	// LoadOrBuild must surface the corruption too, never silently rebuild.
	_, _, err = c.LoadOrBuild(ctx, "broken", sampleText, nil, false)
	assert.ErrorAs(t, err, &readErr)
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	splitter, err := chunker.New(40, 10)
	require.NoError(t, err)
	c := New(store, splitter, &countingEmbedder{})

	require.NoError(t, store.Write("future", []byte(`{"version": 99, "chunks": []}`)))

	var readErr *ReadError
	_, err = c.Load(context.Background(), "future")
	require.ErrorAs(t, err, &readErr)
	assert.Contains(t, readErr.Error(), "version")
}

func TestFSStore_SanitizesIdentity(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	identity := "weird/../name with spaces"
	require.NoError(t, store.Write(identity, []byte("blob")))

	ok, err := store.Exists(identity)
	require.NoError(t, err)
	assert.True(t, ok)

	blob, err := store.Read(identity)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)
}

func TestFSStore_OverwriteReplacesEntry(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("doc", []byte("first")))
	require.NoError(t, store.Write("doc", []byte("second")))

	blob, err := store.Read("doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), blob)
}

func TestHashText(t *testing.T) {
	assert.Empty(t, hashText(""))
	assert.Equal(t, hashText("same"), hashText("same"))
	assert.NotEqual(t, hashText("one"), hashText("two"))
	assert.Len(t, hashText("x"), 64)
}
