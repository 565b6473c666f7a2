package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminalhq/docchat/internal/model"
)

type fakeStore struct {
	docs   map[string][]string       // collection -> document names
	counts map[string]map[string]int // collection -> document -> count
}

func (f *fakeStore) ListDocuments(_ context.Context, collection string) ([]string, error) {
	return f.docs[collection], nil
}

func (f *fakeStore) Count(_ context.Context, collection string, where map[string]any) (int, error) {
	doc, _ := where["document"].(string)
	return f.counts[collection][doc], nil
}

func TestRebuild(t *testing.T) {
	store := &fakeStore{
		docs: map[string][]string{
			model.CollectionDocuments:          {"a.txt", "b.txt"},
			model.CollectionLogicalSummaries:   {"a.txt"},
			model.CollectionParagraphSummaries: {},
		},
		counts: map[string]map[string]int{
			model.CollectionDocuments:        {"a.txt": 12, "b.txt": 5},
			model.CollectionLogicalSummaries: {"a.txt": 2},
		},
	}

	r := New(nil)
	require.NoError(t, r.Rebuild(context.Background(), store))

	assert.True(t, r.Has("a.txt"))
	assert.True(t, r.Has("b.txt"))
	assert.False(t, r.Has("c.txt"))

	info, ok := r.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, 12, info.Counts[model.CollectionDocuments])
	assert.Equal(t, 2, info.Counts[model.CollectionLogicalSummaries])

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a.txt", list[0].Filename, "list is sorted by filename")
}

func TestRecordAndForget(t *testing.T) {
	r := New(nil)
	r.Record("x.txt", model.CollectionDocuments, 4)
	r.Record("x.txt", model.CollectionParagraphSummaries, 2)

	info, ok := r.Get("x.txt")
	require.True(t, ok)
	assert.Equal(t, 4, info.Counts[model.CollectionDocuments])
	assert.Equal(t, 2, info.Counts[model.CollectionParagraphSummaries])
	assert.False(t, info.FirstIngest.IsZero())

	r.Forget("x.txt")
	assert.False(t, r.Has("x.txt"))
}

func TestCollectionCount(t *testing.T) {
	r := New(nil)
	assert.Equal(t, 0, r.CollectionCount(model.CollectionParagraphSummaries))

	r.Record("a.txt", model.CollectionDocuments, 4)
	r.Record("b.txt", model.CollectionDocuments, 3)
	r.Record("a.txt", model.CollectionParagraphSummaries, 2)

	assert.Equal(t, 7, r.CollectionCount(model.CollectionDocuments))
	assert.Equal(t, 2, r.CollectionCount(model.CollectionParagraphSummaries))
	assert.Equal(t, 0, r.CollectionCount(model.CollectionLogicalSummaries))
}

func TestClearAll(t *testing.T) {
	r := New(nil)
	r.Record("a.txt", model.CollectionDocuments, 1)
	r.Record("b.txt", model.CollectionDocuments, 1)
	r.ClearAll()
	assert.Empty(t, r.List())
}

func TestGetReturnsCopy(t *testing.T) {
	r := New(nil)
	r.Record("a.txt", model.CollectionDocuments, 1)

	info, _ := r.Get("a.txt")
	info.Counts[model.CollectionDocuments] = 99

	again, _ := r.Get("a.txt")
	assert.Equal(t, 1, again.Counts[model.CollectionDocuments], "mutating a copy must not leak back")
}
