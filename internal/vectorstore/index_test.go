package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
)

type recordingBackend struct {
	*MemoryBackend
	batches  []int
	failAt   int
	deleted  []string
	queryErr error
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{MemoryBackend: NewMemoryBackend(), failAt: -1}
}

func (r *recordingBackend) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(r.batches) == r.failAt {
		r.batches = append(r.batches, len(records))
		return errors.New("backend rejected batch")
	}
	r.batches = append(r.batches, len(records))
	return r.MemoryBackend.Upsert(ctx, records)
}

func (r *recordingBackend) DeleteByTitle(ctx context.Context, title string) error {
	r.deleted = append(r.deleted, title)
	return r.MemoryBackend.DeleteByTitle(ctx, title)
}

func (r *recordingBackend) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return r.MemoryBackend.Query(ctx, vector, topK)
}

func processed(title string, n int, text func(i int) string) *model.ProcessedDocument {
	md := model.DocumentMetadata{Title: title, Source: "test", Category: []string{"c"}}
	doc := &model.ProcessedDocument{Metadata: md}
	for i := 0; i < n; i++ {
		doc.Chunks = append(doc.Chunks, model.Chunk{Content: text(i), Metadata: md})
		doc.Embeddings = append(doc.Embeddings, []float32{float32(i + 1), 1})
	}
	return doc
}

func TestUpsertBatches(t *testing.T) {
	backend := newRecordingBackend()
	idx := NewIndex(backend, IndexOptions{BatchSize: 100})
	doc := processed("t", 250, func(i int) string { return "chunk" })
	require.NoError(t, idx.Store(context.Background(), doc))
	require.Equal(t, []int{100, 100, 50}, backend.batches)
	require.Equal(t, 250, backend.Len())
}

func TestUpsertAbortsOnFailedBatch(t *testing.T) {
	backend := newRecordingBackend()
	backend.failAt = 1
	idx := NewIndex(backend, IndexOptions{BatchSize: 100})
	doc := processed("t", 250, func(i int) string { return "chunk" })
	err := idx.Store(context.Background(), doc)
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrStorage))
	require.Equal(t, []int{100, 100}, backend.batches)
	// the first batch is not rolled back
	require.Equal(t, 100, backend.Len())
}

func TestStoreTruncatesMetadataText(t *testing.T) {
	backend := newRecordingBackend()
	idx := NewIndex(backend, IndexOptions{MaxMetadataTextLength: 1000})
	long := strings.Repeat("é", 1500)
	doc := processed("long", 2, func(i int) string {
		if i == 0 {
			return long
		}
		return "short"
	})
	require.NoError(t, idx.Store(context.Background(), doc))

	r0 := backend.records["long-0"]
	require.Equal(t, 1000, utf8.RuneCountInString(r0.Metadata.Text))
	require.True(t, r0.Metadata.IsTextTruncated)
	r1 := backend.records["long-1"]
	require.Equal(t, "short", r1.Metadata.Text)
	require.False(t, r1.Metadata.IsTextTruncated)
}

func TestBuildRecordIDs(t *testing.T) {
	doc := processed("Asthma Guide", 3, func(i int) string { return fmt.Sprint(i) })
	records, err := BuildRecords(doc, 1000)
	require.NoError(t, err)
	require.Equal(t, "Asthma Guide-0", records[0].ID)
	require.Equal(t, "Asthma Guide-2", records[2].ID)
	require.Equal(t, []float32{3, 1}, records[2].Values)

	doc.Embeddings = doc.Embeddings[:2]
	_, err = BuildRecords(doc, 1000)
	require.Error(t, err)
}

func TestStoreReplacesPreviousVersion(t *testing.T) {
	backend := newRecordingBackend()
	idx := NewIndex(backend, IndexOptions{ReplaceOnReingest: true})
	ctx := context.Background()
	require.NoError(t, idx.Store(ctx, processed("doc", 5, func(i int) string { return "v1" })))
	require.NoError(t, idx.Store(ctx, processed("doc", 2, func(i int) string { return "v2" })))
	require.Equal(t, []string{"doc", "doc"}, backend.deleted)
	require.Equal(t, 2, backend.Len())
}

func TestStoreKeepsOrphansWithoutReplace(t *testing.T) {
	backend := newRecordingBackend()
	idx := NewIndex(backend, IndexOptions{ReplaceOnReingest: false})
	ctx := context.Background()
	require.NoError(t, idx.Store(ctx, processed("doc", 5, func(i int) string { return "v1" })))
	require.NoError(t, idx.Store(ctx, processed("doc", 2, func(i int) string { return "v2" })))
	require.Empty(t, backend.deleted)
	require.Equal(t, 5, backend.Len())
}

func TestStoreSkipsEmptyDocument(t *testing.T) {
	backend := newRecordingBackend()
	idx := NewIndex(backend, IndexOptions{ReplaceOnReingest: true})
	require.NoError(t, idx.Store(context.Background(), &model.ProcessedDocument{}))
	require.Empty(t, backend.batches)
	require.Empty(t, backend.deleted)
}

func TestQuery(t *testing.T) {
	backend := newRecordingBackend()
	idx := NewIndex(backend, IndexOptions{})
	ctx := context.Background()

	matches, err := idx.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.NotNil(t, matches)
	require.Empty(t, matches)

	require.NoError(t, idx.Upsert(ctx, []model.VectorRecord{
		{ID: "a", Values: []float32{1, 0}, Metadata: model.RecordMetadata{Text: "a"}},
		{ID: "b", Values: []float32{0, 1}, Metadata: model.RecordMetadata{Text: "b"}},
		{ID: "c", Values: []float32{1, 1}, Metadata: model.RecordMetadata{Text: "c"}},
		{ID: "d", Values: []float32{-1, 0}, Metadata: model.RecordMetadata{Text: "d"}},
	}))
	matches, err = idx.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, matches, DefaultTopK)
	require.Equal(t, "a", matches[0].Metadata.Text)
	require.Equal(t, "c", matches[1].Metadata.Text)
	require.InDelta(t, 1.0, matches[0].Score, 1e-9)

	backend.queryErr = errors.New("down")
	_, err = idx.Query(ctx, []float32{1, 0}, 3)
	require.True(t, errors.Is(err, appErr.ErrStorage))
}

func TestNewBackendRegistry(t *testing.T) {
	b, err := NewBackend("Memory", nil, Deps{})
	require.NoError(t, err)
	require.IsType(t, &MemoryBackend{}, b)

	_, err = NewBackend("unknown", nil, Deps{})
	require.Error(t, err)
	_, err = NewBackend("pgvector", nil, Deps{})
	require.Error(t, err)
	_, err = NewBackend("qdrant", map[string]interface{}{}, Deps{})
	require.Error(t, err)
}
