package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/luminalhq/docchat/internal/metrics"
	"github.com/luminalhq/docchat/internal/model"
)

// listPageSize bounds one metadata page when scanning a collection.
const listPageSize = 500

// Client is a minimal Chroma HTTP client. Collection names are resolved to
// store-side ids once and cached for the process lifetime.
type Client struct {
	cfg  Config
	http *http.Client
	base string
	log  *zap.Logger

	mu  sync.Mutex
	ids map[string]string // collection name -> store id
}

// NewClient builds a client; it performs no I/O until first use.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		base: fmt.Sprintf("%s/api/%s", cfg.BaseURL, cfg.APIVersion),
		log:  logger,
		ids:  make(map[string]string),
	}
}

// Heartbeat checks store liveness at the version-specific path.
func (c *Client) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: heartbeat: %v", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: heartbeat status %d", model.ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}

// EnsureCollection get-or-creates a collection and caches its id.
func (c *Client) EnsureCollection(ctx context.Context, name string) error {
	_, err := c.collectionID(ctx, name)
	return err
}

func (c *Client) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if id, ok := c.ids[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	body := map[string]any{"name": name, "get_or_create": true}
	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections", body, &out); err != nil {
		return "", fmt.Errorf("resolve collection %s: %w", name, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: collection %s resolved to empty id", model.ErrInternal, name)
	}

	c.mu.Lock()
	c.ids[name] = out.ID
	c.mu.Unlock()
	return out.ID, nil
}

// Upsert writes records into a collection, creating it if needed.
func (c *Client) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		metrics.RecordVectorStoreMetrics("upsert", collection, "error")
		return model.WithStage(model.StageUpsert, err)
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	documents := make([]string, len(records))
	metadatas := make([]map[string]any, len(records))
	for i, r := range records {
		ids[i] = r.ID
		embeddings[i] = r.Vector
		documents[i] = r.Content
		metadatas[i] = r.Metadata
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+id+"/upsert", body, nil); err != nil {
		metrics.RecordVectorStoreMetrics("upsert", collection, "error")
		return model.WithStage(model.StageUpsert, err)
	}
	metrics.RecordVectorStoreMetrics("upsert", collection, "ok")
	return nil
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query runs a nearest-neighbor search. Distances come back from the store;
// the returned Score is similarity clamp01(1 - distance), higher is better.
func (c *Client) Query(ctx context.Context, collection string, vector []float32, topK int, where map[string]any) ([]Hit, error) {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		metrics.RecordVectorStoreMetrics("query", collection, "error")
		return nil, model.WithStage(model.StageQuery, err)
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		body["where"] = where
	}

	var out queryResponse
	if err := c.do(ctx, http.MethodPost, "/collections/"+id+"/query", body, &out); err != nil {
		metrics.RecordVectorStoreMetrics("query", collection, "error")
		return nil, model.WithStage(model.StageQuery, err)
	}
	metrics.RecordVectorStoreMetrics("query", collection, "ok")

	if len(out.IDs) == 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, len(out.IDs[0]))
	for i, hid := range out.IDs[0] {
		h := Hit{ID: hid}
		if len(out.Documents) > 0 && i < len(out.Documents[0]) {
			h.Content = out.Documents[0][i]
		}
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) {
			h.Metadata = out.Metadatas[0][i]
		}
		if len(out.Distances) > 0 && i < len(out.Distances[0]) {
			h.Score = similarity(out.Distances[0][i])
		}
		hits = append(hits, h)
	}
	return hits, nil
}

type getResponse struct {
	IDs       []string         `json:"ids"`
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

// GetByIDs fetches records by chunk id. Missing ids are silently absent from
// the result.
func (c *Client) GetByIDs(ctx context.Context, collection string, ids []string) ([]Hit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cid, err := c.collectionID(ctx, collection)
	if err != nil {
		metrics.RecordVectorStoreMetrics("get", collection, "error")
		return nil, model.WithStage(model.StageQuery, err)
	}

	body := map[string]any{
		"ids":     ids,
		"include": []string{"documents", "metadatas"},
	}
	var out getResponse
	if err := c.do(ctx, http.MethodPost, "/collections/"+cid+"/get", body, &out); err != nil {
		metrics.RecordVectorStoreMetrics("get", collection, "error")
		return nil, model.WithStage(model.StageQuery, err)
	}
	metrics.RecordVectorStoreMetrics("get", collection, "ok")

	hits := make([]Hit, 0, len(out.IDs))
	for i, hid := range out.IDs {
		h := Hit{ID: hid}
		if i < len(out.Documents) {
			h.Content = out.Documents[i]
		}
		if i < len(out.Metadatas) {
			h.Metadata = out.Metadatas[i]
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// GetWhere pages through all records matching the metadata filter.
func (c *Client) GetWhere(ctx context.Context, collection string, where map[string]any) ([]Hit, error) {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		metrics.RecordVectorStoreMetrics("get", collection, "error")
		return nil, model.WithStage(model.StageQuery, err)
	}

	var hits []Hit
	for offset := 0; ; offset += listPageSize {
		body := map[string]any{
			"where":   where,
			"include": []string{"documents", "metadatas"},
			"limit":   listPageSize,
			"offset":  offset,
		}
		var out getResponse
		if err := c.do(ctx, http.MethodPost, "/collections/"+id+"/get", body, &out); err != nil {
			metrics.RecordVectorStoreMetrics("get", collection, "error")
			return nil, model.WithStage(model.StageQuery, err)
		}
		for i, hid := range out.IDs {
			h := Hit{ID: hid}
			if i < len(out.Documents) {
				h.Content = out.Documents[i]
			}
			if i < len(out.Metadatas) {
				h.Metadata = out.Metadatas[i]
			}
			hits = append(hits, h)
		}
		if len(out.IDs) < listPageSize {
			metrics.RecordVectorStoreMetrics("get", collection, "ok")
			return hits, nil
		}
	}
}

// DeleteWhere removes all records matching the metadata filter and returns
// how many were deleted.
func (c *Client) DeleteWhere(ctx context.Context, collection string, where map[string]any) (int, error) {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		metrics.RecordVectorStoreMetrics("delete", collection, "error")
		return 0, model.WithStage(model.StageUpsert, err)
	}
	body := map[string]any{"where": where}
	var deleted []string
	if err := c.do(ctx, http.MethodPost, "/collections/"+id+"/delete", body, &deleted); err != nil {
		metrics.RecordVectorStoreMetrics("delete", collection, "error")
		return 0, model.WithStage(model.StageUpsert, err)
	}
	metrics.RecordVectorStoreMetrics("delete", collection, "ok")
	return len(deleted), nil
}

// Count returns the number of records matching the filter, or the whole
// collection when where is nil.
func (c *Client) Count(ctx context.Context, collection string, where map[string]any) (int, error) {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return 0, model.WithStage(model.StageQuery, err)
	}
	if where == nil {
		var n int
		if err := c.do(ctx, http.MethodGet, "/collections/"+id+"/count", nil, &n); err != nil {
			return 0, model.WithStage(model.StageQuery, err)
		}
		return n, nil
	}

	// Filtered counts go through paged gets; the count endpoint has no where.
	total := 0
	for offset := 0; ; offset += listPageSize {
		body := map[string]any{
			"where":   where,
			"include": []string{},
			"limit":   listPageSize,
			"offset":  offset,
		}
		var out getResponse
		if err := c.do(ctx, http.MethodPost, "/collections/"+id+"/get", body, &out); err != nil {
			return 0, model.WithStage(model.StageQuery, err)
		}
		total += len(out.IDs)
		if len(out.IDs) < listPageSize {
			return total, nil
		}
	}
}

// ListDocuments scans collection metadata and returns the distinct owning
// document filenames.
func (c *Client) ListDocuments(ctx context.Context, collection string) ([]string, error) {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return nil, model.WithStage(model.StageQuery, err)
	}

	seen := make(map[string]bool)
	var docs []string
	for offset := 0; ; offset += listPageSize {
		body := map[string]any{
			"include": []string{"metadatas"},
			"limit":   listPageSize,
			"offset":  offset,
		}
		var out getResponse
		if err := c.do(ctx, http.MethodPost, "/collections/"+id+"/get", body, &out); err != nil {
			return nil, model.WithStage(model.StageQuery, err)
		}
		for _, md := range out.Metadatas {
			if name, ok := md["document"].(string); ok && name != "" && !seen[name] {
				seen[name] = true
				docs = append(docs, name)
			}
		}
		if len(out.IDs) < listPageSize {
			return docs, nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return model.Classify(ctx.Err())
		}
		return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", model.ErrUpstreamUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// similarity converts a distance to a [0,1] score, higher is better.
func similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
