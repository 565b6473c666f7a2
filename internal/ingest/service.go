package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luminalhq/docchat/internal/chunker"
	"github.com/luminalhq/docchat/internal/metrics"
	"github.com/luminalhq/docchat/internal/model"
	"github.com/luminalhq/docchat/internal/vectordb"
)

const (
	// Logical summaries compress windows of this many raw chunks.
	logicalWindow = 10
	// Target compression ratios per summary collection.
	logicalRatio   = 0.10
	paragraphRatio = 1.0 / 3.0
)

// Embedder is the slice of the embedding client ingestion needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer is the slice of the LLM client ingestion needs.
type Summarizer interface {
	Summarize(ctx context.Context, text string, ratio float64) (string, error)
}

// Store is the slice of the vector store ingestion needs.
type Store interface {
	Upsert(ctx context.Context, collection string, records []vectordb.Record) error
	GetWhere(ctx context.Context, collection string, where map[string]any) ([]vectordb.Hit, error)
	DeleteWhere(ctx context.Context, collection string, where map[string]any) (int, error)
}

// Catalog is the slice of the document registry ingestion needs.
type Catalog interface {
	Has(filename string) bool
	List() []model.DocInfo
	Record(filename, collection string, count int)
	Forget(filename string)
	ClearAll()
}

// Mirror copies raw uploads to object storage. Failures are logged, never
// propagated.
type Mirror interface {
	Put(ctx context.Context, filename string, data []byte) error
}

// UploadResult reports one completed basic ingestion.
type UploadResult struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	Chunks      int    `json:"chunks_indexed"`
	Replaced    bool   `json:"replaced"`
}

// SummaryResult reports one completed summary ingestion.
type SummaryResult struct {
	Filename  string `json:"filename"`
	Summaries int    `json:"summaries_indexed"`
}

// Service drives the three-stage ingestion pipeline. One document can be
// ingested by at most one request at a time; concurrent attempts on the same
// filename fail fast with ErrAlreadyIngesting.
type Service struct {
	splitter   *chunker.Splitter
	embedder   Embedder
	summarizer Summarizer
	store      Store
	catalog    Catalog
	mirror     Mirror // optional
	log        *zap.Logger

	summaryConcurrency int
	chunkOverlap       int

	mu     sync.Mutex
	active map[string]bool

	// Raw upload text kept around so summary stages work on the original,
	// not a chunk reconstruction. Evicted on delete.
	rawMu sync.RWMutex
	raw   map[string]string
}

// Options configures the ingestion service.
type Options struct {
	ChunkSize          int
	ChunkOverlap       int
	SummaryConcurrency int
	Mirror             Mirror
}

func NewService(embedder Embedder, summarizer Summarizer, store Store, catalog Catalog, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SummaryConcurrency <= 0 {
		opts.SummaryConcurrency = 4
	}
	return &Service{
		splitter:           chunker.NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		embedder:           embedder,
		summarizer:         summarizer,
		store:              store,
		catalog:            catalog,
		mirror:             opts.Mirror,
		log:                logger,
		summaryConcurrency: opts.SummaryConcurrency,
		chunkOverlap:       opts.ChunkOverlap,
		active:             make(map[string]bool),
		raw:                make(map[string]string),
	}
}

// tryLock reserves a filename for the duration of one ingestion step.
func (s *Service) tryLock(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[filename] {
		return fmt.Errorf("%w: %s", model.ErrAlreadyIngesting, filename)
	}
	s.active[filename] = true
	return nil
}

func (s *Service) unlock(filename string) {
	s.mu.Lock()
	delete(s.active, filename)
	s.mu.Unlock()
}

// Upload chunks and indexes a document into the documents collection. An
// existing document is rejected unless force is set, in which case all of its
// records across every collection are replaced.
func (s *Service) Upload(ctx context.Context, filename string, content []byte, force bool) (*UploadResult, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: empty filename", model.ErrInvalidQuery)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, fmt.Errorf("%w: empty document", model.ErrInvalidQuery)
	}
	if err := s.tryLock(filename); err != nil {
		return nil, err
	}
	defer s.unlock(filename)

	replaced := false
	if s.catalog.Has(filename) {
		if !force {
			return nil, fmt.Errorf("%w: document %s", model.ErrAlreadyExists, filename)
		}
		if err := s.deleteEverywhere(ctx, filename); err != nil {
			return nil, err
		}
		replaced = true
	}

	start := time.Now()

	pieces := s.splitter.SplitIntoChunks(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: nothing to index", model.ErrInvalidQuery)
	}

	vecs, err := s.embedder.Embed(ctx, pieces)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues(model.CollectionDocuments, "error").Inc()
		return nil, err
	}

	records := make([]vectordb.Record, len(pieces))
	for i, p := range pieces {
		records[i] = vectordb.Record{
			ID:      model.ChunkID(filename, model.CollectionDocuments, i),
			Vector:  vecs[i],
			Content: p,
			Metadata: map[string]any{
				"document":     filename,
				"chunk_index":  i,
				"total_chunks": len(pieces),
			},
		}
	}

	if err := s.store.Upsert(ctx, model.CollectionDocuments, records); err != nil {
		s.rollback(filename, model.CollectionDocuments)
		metrics.DocumentsIngested.WithLabelValues(model.CollectionDocuments, "error").Inc()
		return nil, err
	}

	s.rawMu.Lock()
	s.raw[filename] = text
	s.rawMu.Unlock()

	s.catalog.Record(filename, model.CollectionDocuments, len(records))
	metrics.DocumentsIngested.WithLabelValues(model.CollectionDocuments, "ok").Inc()
	metrics.ChunksIndexed.WithLabelValues(model.CollectionDocuments).Add(float64(len(records)))
	metrics.IngestDuration.WithLabelValues(model.CollectionDocuments).Observe(time.Since(start).Seconds())

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, filename, content); err != nil {
			s.log.Warn("upload mirror failed", zap.String("filename", filename), zap.Error(err))
		}
	}

	sum := sha256.Sum256(content)
	s.log.Info("document ingested",
		zap.String("filename", filename),
		zap.Int("chunks", len(records)),
		zap.Bool("replaced", replaced))
	return &UploadResult{
		Filename:    filename,
		ContentHash: hex.EncodeToString(sum[:]),
		Chunks:      len(records),
		Replaced:    replaced,
	}, nil
}

// IngestLogicalSummaries builds one 10:1 summary per window of 10 raw chunks
// and indexes them into logical_summaries.
func (s *Service) IngestLogicalSummaries(ctx context.Context, filename string) (*SummaryResult, error) {
	if err := s.tryLock(filename); err != nil {
		return nil, err
	}
	defer s.unlock(filename)

	chunks, err := s.documentChunks(ctx, filename)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	type window struct {
		index     int
		lo, hi    int // chunk index range, inclusive
		text      string
		sourceIDs []string
	}
	var windows []window
	for lo := 0; lo < len(chunks); lo += logicalWindow {
		hi := lo + logicalWindow - 1
		if hi >= len(chunks) {
			hi = len(chunks) - 1
		}
		var sb strings.Builder
		ids := make([]string, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(chunks[i].Content)
			ids = append(ids, chunks[i].ID)
		}
		windows = append(windows, window{index: len(windows), lo: lo, hi: hi, text: sb.String(), sourceIDs: ids})
	}

	summaries := make([]string, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.summaryConcurrency)
	for _, w := range windows {
		w := w
		g.Go(func() error {
			out, err := s.summarizer.Summarize(gctx, w.text, logicalRatio)
			if err != nil {
				return err
			}
			summaries[w.index] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.DocumentsIngested.WithLabelValues(model.CollectionLogicalSummaries, "error").Inc()
		return nil, err
	}

	vecs, err := s.embedder.Embed(ctx, summaries)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues(model.CollectionLogicalSummaries, "error").Inc()
		return nil, err
	}

	records := make([]vectordb.Record, len(windows))
	for i, w := range windows {
		ratio := 0.0
		if len(w.text) > 0 {
			ratio = float64(len(summaries[i])) / float64(len(w.text))
		}
		records[i] = vectordb.Record{
			ID:      model.ChunkID(filename, model.CollectionLogicalSummaries, i),
			Vector:  vecs[i],
			Content: summaries[i],
			Metadata: map[string]any{
				"document":          filename,
				"window_start":      w.lo,
				"window_end":        w.hi,
				"source_chunk_ids":  strings.Join(w.sourceIDs, ","),
				"compression_ratio": ratio,
			},
		}
	}

	if err := s.store.Upsert(ctx, model.CollectionLogicalSummaries, records); err != nil {
		s.rollback(filename, model.CollectionLogicalSummaries)
		metrics.DocumentsIngested.WithLabelValues(model.CollectionLogicalSummaries, "error").Inc()
		return nil, err
	}

	s.catalog.Record(filename, model.CollectionLogicalSummaries, len(records))
	metrics.DocumentsIngested.WithLabelValues(model.CollectionLogicalSummaries, "ok").Inc()
	metrics.ChunksIndexed.WithLabelValues(model.CollectionLogicalSummaries).Add(float64(len(records)))
	metrics.IngestDuration.WithLabelValues(model.CollectionLogicalSummaries).Observe(time.Since(start).Seconds())

	s.log.Info("logical summaries ingested",
		zap.String("filename", filename), zap.Int("summaries", len(records)))
	return &SummaryResult{Filename: filename, Summaries: len(records)}, nil
}

// IngestParagraphSummaries builds one 3:1 summary per paragraph of the
// original text and indexes them into paragraph_summaries.
func (s *Service) IngestParagraphSummaries(ctx context.Context, filename string) (*SummaryResult, error) {
	if err := s.tryLock(filename); err != nil {
		return nil, err
	}
	defer s.unlock(filename)

	text, err := s.originalText(ctx, filename)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	paragraphs := chunker.SplitIntoParagraphs(text)
	if len(paragraphs) == 0 {
		return &SummaryResult{Filename: filename}, nil
	}

	summaries := make([]string, len(paragraphs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.summaryConcurrency)
	for i, p := range paragraphs {
		i, p := i, p
		g.Go(func() error {
			out, err := s.summarizer.Summarize(gctx, p, paragraphRatio)
			if err != nil {
				return err
			}
			summaries[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.DocumentsIngested.WithLabelValues(model.CollectionParagraphSummaries, "error").Inc()
		return nil, err
	}

	vecs, err := s.embedder.Embed(ctx, summaries)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues(model.CollectionParagraphSummaries, "error").Inc()
		return nil, err
	}

	records := make([]vectordb.Record, len(paragraphs))
	for i := range paragraphs {
		records[i] = vectordb.Record{
			ID:      model.ChunkID(filename, model.CollectionParagraphSummaries, i),
			Vector:  vecs[i],
			Content: summaries[i],
			Metadata: map[string]any{
				"document":        filename,
				"paragraph_index": i,
				"source_length":   len(paragraphs[i]),
				"summary_length":  len(summaries[i]),
			},
		}
	}

	if err := s.store.Upsert(ctx, model.CollectionParagraphSummaries, records); err != nil {
		s.rollback(filename, model.CollectionParagraphSummaries)
		metrics.DocumentsIngested.WithLabelValues(model.CollectionParagraphSummaries, "error").Inc()
		return nil, err
	}

	s.catalog.Record(filename, model.CollectionParagraphSummaries, len(records))
	metrics.DocumentsIngested.WithLabelValues(model.CollectionParagraphSummaries, "ok").Inc()
	metrics.ChunksIndexed.WithLabelValues(model.CollectionParagraphSummaries).Add(float64(len(records)))
	metrics.IngestDuration.WithLabelValues(model.CollectionParagraphSummaries).Observe(time.Since(start).Seconds())

	s.log.Info("paragraph summaries ingested",
		zap.String("filename", filename), zap.Int("summaries", len(records)))
	return &SummaryResult{Filename: filename, Summaries: len(records)}, nil
}

// DeleteDocument removes a document from every collection and the catalog.
func (s *Service) DeleteDocument(ctx context.Context, filename string) error {
	if !s.catalog.Has(filename) {
		return fmt.Errorf("%w: document %s", model.ErrNotFound, filename)
	}
	if err := s.tryLock(filename); err != nil {
		return err
	}
	defer s.unlock(filename)
	return s.deleteEverywhere(ctx, filename)
}

// DeleteCount reports how many records one clear pass removed per collection.
type DeleteCount struct {
	Collection string `json:"collection"`
	Deleted    int    `json:"n_deleted"`
}

// ClearAll removes every document from the store, empties the catalog, and
// reports per-collection delete counts.
func (s *Service) ClearAll(ctx context.Context) ([]DeleteCount, error) {
	totals := make(map[string]int)
	for _, info := range s.catalog.List() {
		for _, collection := range model.AllCollections() {
			n, err := s.store.DeleteWhere(ctx, collection, vectordb.WhereDocument(info.Filename))
			if err != nil {
				return nil, err
			}
			totals[collection] += n
		}
	}
	s.catalog.ClearAll()
	s.rawMu.Lock()
	s.raw = make(map[string]string)
	s.rawMu.Unlock()

	out := make([]DeleteCount, 0, len(model.AllCollections()))
	for _, collection := range model.AllCollections() {
		out = append(out, DeleteCount{Collection: collection, Deleted: totals[collection]})
	}
	return out, nil
}

func (s *Service) deleteEverywhere(ctx context.Context, filename string) error {
	for _, collection := range model.AllCollections() {
		if _, err := s.store.DeleteWhere(ctx, collection, vectordb.WhereDocument(filename)); err != nil {
			return err
		}
	}
	s.catalog.Forget(filename)
	s.rawMu.Lock()
	delete(s.raw, filename)
	s.rawMu.Unlock()
	return nil
}

// rollback deletes whatever a failed upsert may have written. It runs on a
// fresh context so cancellation of the request cannot strand partial state.
func (s *Service) rollback(filename, collection string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.store.DeleteWhere(ctx, collection, vectordb.WhereDocument(filename)); err != nil {
		s.log.Error("rollback failed, partial records may remain",
			zap.String("filename", filename),
			zap.String("collection", collection),
			zap.Error(err))
	}
}

// documentChunks returns a document's raw chunks ordered by chunk index.
func (s *Service) documentChunks(ctx context.Context, filename string) ([]vectordb.Hit, error) {
	hits, err := s.store.GetWhere(ctx, model.CollectionDocuments, vectordb.WhereDocument(filename))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: document %s", model.ErrNotFound, filename)
	}
	sort.Slice(hits, func(i, j int) bool {
		return chunkIndex(hits[i].Metadata) < chunkIndex(hits[j].Metadata)
	})
	return hits, nil
}

// originalText prefers the raw upload kept in memory and falls back to
// stitching the stored chunks back together, dropping the overlap carryover.
func (s *Service) originalText(ctx context.Context, filename string) (string, error) {
	s.rawMu.RLock()
	text, ok := s.raw[filename]
	s.rawMu.RUnlock()
	if ok {
		return text, nil
	}

	chunks, err := s.documentChunks(ctx, filename)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, c := range chunks {
		piece := c.Content
		if i > 0 && len(piece) > s.chunkOverlap {
			piece = piece[s.chunkOverlap:]
		}
		sb.WriteString(piece)
	}
	return sb.String(), nil
}

func chunkIndex(md map[string]any) int {
	switch v := md["chunk_index"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
