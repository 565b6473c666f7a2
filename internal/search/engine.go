package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luminalhq/docchat/internal/metrics"
	"github.com/luminalhq/docchat/internal/model"
	"github.com/luminalhq/docchat/internal/vectordb"
)

const (
	defaultTopK = 10
	maxTopK     = 50

	// Per-collection fetch multiplier; the merge keeps the best top_k overall.
	fetchFactor = 3

	// Scores closer than this are treated as equal for ordering.
	scoreEpsilon = 1e-6
)

// Search strategies, in decreasing breadth.
const (
	StrategyParagraph = "paragraph"
	StrategyEnhanced  = "enhanced"
	StrategyBasic     = "basic"
)

// Embedder is the slice of the embedding client the engine needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the slice of the vector store the engine needs.
type Store interface {
	Query(ctx context.Context, collection string, vector []float32, topK int, where map[string]any) ([]vectordb.Hit, error)
}

// Catalog reports how populated each collection is; used to pick a default
// strategy when the caller names none.
type Catalog interface {
	CollectionCount(collection string) int
}

// Request describes one search.
type Request struct {
	Query    string
	TopK     int
	Strategy string
	// Collections overrides strategy selection with an explicit subset of
	// the three collections.
	Collections []string
	// MinScore drops hits below it. Zero keeps everything.
	MinScore float64
	// Documents restricts the search to these filenames; ExcludeDocuments
	// removes them instead. Both empty means the whole store.
	Documents        []string
	ExcludeDocuments []string
}

// Engine runs cross-collection searches and records the results in the cache
// under a fresh search_id.
type Engine struct {
	embedder Embedder
	store    Store
	catalog  Catalog // may be nil
	cache    *Cache
	log      *zap.Logger
}

func NewEngine(embedder Embedder, store Store, catalog Catalog, cache *Cache, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{embedder: embedder, store: store, catalog: catalog, cache: cache, log: logger}
}

// collectionsFor maps a strategy to the collections it touches. Paragraph
// pairs the paragraph summaries with the raw chunks; logical summaries only
// join in under the enhanced strategy.
func collectionsFor(strategy string) []string {
	switch strategy {
	case StrategyBasic:
		return []string{model.CollectionDocuments}
	case StrategyEnhanced:
		return []string{model.CollectionDocuments, model.CollectionLogicalSummaries}
	default:
		return []string{model.CollectionDocuments, model.CollectionParagraphSummaries}
	}
}

// defaultStrategy picks the richest strategy the store's population supports:
// paragraph when paragraph summaries exist, enhanced when only logical
// summaries do, basic otherwise.
func (e *Engine) defaultStrategy() string {
	if e.catalog == nil {
		return StrategyParagraph
	}
	switch {
	case e.catalog.CollectionCount(model.CollectionParagraphSummaries) > 0:
		return StrategyParagraph
	case e.catalog.CollectionCount(model.CollectionLogicalSummaries) > 0:
		return StrategyEnhanced
	default:
		return StrategyBasic
	}
}

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s string) bool {
	switch s {
	case "", StrategyParagraph, StrategyEnhanced, StrategyBasic:
		return true
	}
	return false
}

// Search embeds the query once, fans out over the strategy's collections with
// k = top_k*3 each, merges and orders the hits, and caches the outcome.
func (e *Engine) Search(ctx context.Context, req Request) (*model.SearchResultSet, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", model.ErrInvalidQuery)
	}
	if !ValidStrategy(req.Strategy) {
		return nil, fmt.Errorf("%w: unknown strategy %q", model.ErrInvalidQuery, req.Strategy)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = e.defaultStrategy()
	}

	vecs, err := e.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(strategy, "error").Inc()
		return nil, err
	}

	where := buildFilter(req.Documents, req.ExcludeDocuments)
	collections := collectionsFor(strategy)
	if len(req.Collections) > 0 {
		for _, c := range req.Collections {
			if model.CollectionRank(c) > 2 {
				metrics.SearchesTotal.WithLabelValues(strategy, "error").Inc()
				return nil, fmt.Errorf("%w: unknown collection %q", model.ErrInvalidQuery, c)
			}
		}
		collections = req.Collections
	}

	var merged []model.SearchHit
	for _, collection := range collections {
		hits, err := e.store.Query(ctx, collection, vecs[0], topK*fetchFactor, where)
		if err != nil {
			metrics.SearchesTotal.WithLabelValues(strategy, "error").Inc()
			return nil, err
		}
		for _, h := range hits {
			if req.MinScore > 0 && h.Score < req.MinScore {
				continue
			}
			merged = append(merged, toSearchHit(h, collection))
		}
	}

	orderHits(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	set := &model.SearchResultSet{
		SearchID:            uuid.New().String(),
		Query:               req.Query,
		Results:             merged,
		UniqueDocuments:     uniqueDocuments(merged),
		ChunkIDs:            chunkIDs(merged),
		CollectionsSearched: collections,
		Timestamp:           time.Now().UTC(),
	}
	if e.cache != nil {
		e.cache.Put(*set)
	}

	metrics.SearchesTotal.WithLabelValues(strategy, "ok").Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	e.log.Debug("search complete",
		zap.String("search_id", set.SearchID),
		zap.String("strategy", strategy),
		zap.Int("results", len(merged)))
	return set, nil
}

// orderHits sorts by score descending; scores within epsilon fall back to
// collection rank, then chunk id.
func orderHits(hits []model.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return a.Score > b.Score
		}
		ra, rb := model.CollectionRank(a.Collection), model.CollectionRank(b.Collection)
		if ra != rb {
			return ra < rb
		}
		return a.ChunkID < b.ChunkID
	})
}

// FilterCitations keeps hits at or above threshold; with nothing above it,
// the single best hit survives so an answer is never left uncited.
func FilterCitations(hits []model.SearchHit, threshold float64) []model.SearchHit {
	var kept []model.SearchHit
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 && len(hits) > 0 {
		best := hits[0]
		for _, h := range hits[1:] {
			if h.Score > best.Score {
				best = h
			}
		}
		kept = []model.SearchHit{best}
	}
	return kept
}

func buildFilter(include, exclude []string) map[string]any {
	switch {
	case len(include) > 0:
		return vectordb.WhereDocumentIn(include)
	case len(exclude) > 0:
		return vectordb.WhereDocumentNotIn(exclude)
	default:
		return nil
	}
}

func toSearchHit(h vectordb.Hit, collection string) model.SearchHit {
	out := model.SearchHit{
		Content:    h.Content,
		Score:      h.Score,
		ChunkID:    h.ID,
		Collection: collection,
		Metadata:   h.Metadata,
	}
	if doc, ok := h.Metadata["document"].(string); ok {
		out.Document = doc
	} else if doc, _, _, err := model.ParseChunkID(h.ID); err == nil {
		out.Document = doc
	}
	return out
}

func uniqueDocuments(hits []model.SearchHit) []string {
	seen := make(map[string]bool)
	var docs []string
	for _, h := range hits {
		if h.Document != "" && !seen[h.Document] {
			seen[h.Document] = true
			docs = append(docs, h.Document)
		}
	}
	return docs
}

func chunkIDs(hits []model.SearchHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}
