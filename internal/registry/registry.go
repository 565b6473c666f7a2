package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luminalhq/docchat/internal/model"
	"github.com/luminalhq/docchat/internal/vectordb"
)

// Store is the slice of the vector store the registry needs to rebuild its
// view of what is indexed.
type Store interface {
	ListDocuments(ctx context.Context, collection string) ([]string, error)
	Count(ctx context.Context, collection string, where map[string]any) (int, error)
}

// Registry is the in-memory catalog of ingested documents. The vector store
// is the source of truth; the registry is rebuilt from it at startup and kept
// current by the ingestion path afterwards.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*model.DocInfo
	log  *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{docs: make(map[string]*model.DocInfo), log: logger}
}

// Rebuild repopulates the catalog by scanning all collections. The previous
// view is replaced wholesale.
func (r *Registry) Rebuild(ctx context.Context, store Store) error {
	fresh := make(map[string]*model.DocInfo)
	for _, collection := range model.AllCollections() {
		names, err := store.ListDocuments(ctx, collection)
		if err != nil {
			return err
		}
		for _, name := range names {
			n, err := store.Count(ctx, collection, vectordb.WhereDocument(name))
			if err != nil {
				return err
			}
			info, ok := fresh[name]
			if !ok {
				info = &model.DocInfo{Filename: name, Counts: make(map[string]int), FirstIngest: time.Now()}
				fresh[name] = info
			}
			info.Counts[collection] = n
		}
	}

	r.mu.Lock()
	r.docs = fresh
	r.mu.Unlock()

	r.log.Info("document registry rebuilt", zap.Int("documents", len(fresh)))
	return nil
}

// Has reports whether a document is present in any collection.
func (r *Registry) Has(filename string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.docs[filename]
	return ok
}

// Get returns a copy of one document's info.
func (r *Registry) Get(filename string) (model.DocInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.docs[filename]
	if !ok {
		return model.DocInfo{}, false
	}
	return cloneInfo(info), true
}

// List returns all documents sorted by filename.
func (r *Registry) List() []model.DocInfo {
	r.mu.RLock()
	out := make([]model.DocInfo, 0, len(r.docs))
	for _, info := range r.docs {
		out = append(out, cloneInfo(info))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// CollectionCount sums the indexed entries across all documents for one
// collection.
func (r *Registry) CollectionCount(collection string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, info := range r.docs {
		total += info.Counts[collection]
	}
	return total
}

// Record notes that count chunks for filename now live in collection.
func (r *Registry) Record(filename, collection string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.docs[filename]
	if !ok {
		info = &model.DocInfo{Filename: filename, Counts: make(map[string]int), FirstIngest: time.Now()}
		r.docs[filename] = info
	}
	info.Counts[collection] = count
}

// Forget drops a document from the catalog.
func (r *Registry) Forget(filename string) {
	r.mu.Lock()
	delete(r.docs, filename)
	r.mu.Unlock()
}

// ClearAll empties the catalog.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	r.docs = make(map[string]*model.DocInfo)
	r.mu.Unlock()
}

func cloneInfo(info *model.DocInfo) model.DocInfo {
	counts := make(map[string]int, len(info.Counts))
	for k, v := range info.Counts {
		counts[k] = v
	}
	return model.DocInfo{Filename: info.Filename, Counts: counts, FirstIngest: info.FirstIngest}
}
