package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The three collection names are part of the external contract and must not
// be renamed: the vector store holds exactly these buckets.
const (
	CollectionDocuments          = "documents"
	CollectionLogicalSummaries   = "logical_summaries"
	CollectionParagraphSummaries = "paragraph_summaries"
)

// AllCollections returns the collections in ingestion order.
func AllCollections() []string {
	return []string{CollectionDocuments, CollectionLogicalSummaries, CollectionParagraphSummaries}
}

// CollectionRank orders collections for tie-breaking in merged search
// results: documents first, then paragraph_summaries, then logical_summaries.
func CollectionRank(collection string) int {
	switch collection {
	case CollectionDocuments:
		return 0
	case CollectionParagraphSummaries:
		return 1
	case CollectionLogicalSummaries:
		return 2
	default:
		return 3
	}
}

// ChunkID builds the globally unique chunk identifier
// <document>::<collection>::<zero-padded-index>.
func ChunkID(document, collection string, index int) string {
	return fmt.Sprintf("%s::%s::%04d", document, collection, index)
}

// ParseChunkID splits a chunk id back into its parts.
func ParseChunkID(id string) (document, collection string, index int, err error) {
	parts := strings.Split(id, "::")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("malformed chunk id %q", id)
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", "", 0, fmt.Errorf("malformed chunk index in %q", id)
	}
	return parts[0], parts[1], idx, nil
}

// Chunk is the atomic indexed unit: text plus metadata, destined for one
// collection.
type Chunk struct {
	ID         string         `json:"chunk_id"`
	Document   string         `json:"document"`
	Collection string         `json:"collection"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchHit is one ranked retrieval result. Score is cosine similarity in
// [0,1], higher is better.
type SearchHit struct {
	Content    string         `json:"content"`
	Score      float64        `json:"score"`
	Document   string         `json:"document"`
	ChunkID    string         `json:"chunk_id"`
	Collection string         `json:"collection"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResultSet is the cached, reusable outcome of one search.
type SearchResultSet struct {
	SearchID            string      `json:"search_id"`
	Query               string      `json:"query"`
	Results             []SearchHit `json:"results"`
	UniqueDocuments     []string    `json:"unique_documents"`
	ChunkIDs            []string    `json:"chunk_ids"`
	CollectionsSearched []string    `json:"collections_searched"`
	Timestamp           time.Time   `json:"timestamp"`
}

// Citation is a passage reference emitted alongside an answer.
type Citation struct {
	Text                string  `json:"text"`
	Document            string  `json:"document"`
	Collection          string  `json:"collection"`
	ChunkID             string  `json:"chunk_id"`
	RelevancyScore      float64 `json:"relevancy_score"`
	RelevancyPercentage float64 `json:"relevancy_percentage"`
}

// NewCitation derives a citation from a search hit.
func NewCitation(h SearchHit) Citation {
	return Citation{
		Text:                h.Content,
		Document:            h.Document,
		Collection:          h.Collection,
		ChunkID:             h.ChunkID,
		RelevancyScore:      h.Score,
		RelevancyPercentage: h.Score * 100,
	}
}

// DocInfo tracks one document's presence across the three collections.
type DocInfo struct {
	Filename    string         `json:"filename"`
	Counts      map[string]int `json:"counts"`
	FirstIngest time.Time      `json:"first_ingest"`
}
