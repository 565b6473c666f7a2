package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/luminalhq/docchat/internal/model"
	"github.com/luminalhq/docchat/internal/qa"
	"github.com/luminalhq/docchat/internal/search"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := s.checks.Run(ctx)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     report.Status,
		"components": report.Components,
		"documents":  len(s.catalog.List()),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.catalog.List()})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	filename, err := pathFilename(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ingester.DeleteDocument(r.Context(), filename); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": filename})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	counts, err := s.ingester.ClearAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": counts})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	documents := make(map[string][]string)
	for _, info := range s.catalog.List() {
		for collection, n := range info.Counts {
			counts[collection] += n
			if n > 0 {
				documents[collection] = append(documents[collection], info.Filename)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collections": model.AllCollections(),
		"counts":      counts,
		"documents":   documents,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed multipart form: %v", model.ErrInvalidQuery, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: missing file field", model.ErrInvalidQuery))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: reading upload: %v", model.ErrInternal, err))
		return
	}
	force := r.FormValue("force") == "true"

	res, err := s.ingester.Upload(r.Context(), header.Filename, content, force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogicalSummaries(w http.ResponseWriter, r *http.Request) {
	filename, err := pathFilename(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.ingester.IngestLogicalSummaries(r.Context(), filename)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleParagraphSummaries(w http.ResponseWriter, r *http.Request) {
	filename, err := pathFilename(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.ingester.IngestParagraphSummaries(r.Context(), filename)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type searchRequest struct {
	Query            string   `json:"query"`
	TopK             int      `json:"top_k,omitempty"`
	Strategy         string   `json:"strategy,omitempty"`
	Collections      []string `json:"collections,omitempty"`
	MinScore         float64  `json:"min_score,omitempty"`
	Documents        []string `json:"documents,omitempty"`
	ExcludeDocuments []string `json:"exclude_documents,omitempty"`
	ReturnChunks     *bool    `json:"return_chunks,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	set, err := s.searcher.Search(r.Context(), search.Request{
		Query:            req.Query,
		TopK:             req.TopK,
		Strategy:         req.Strategy,
		Collections:      req.Collections,
		MinScore:         req.MinScore,
		Documents:        req.Documents,
		ExcludeDocuments: req.ExcludeDocuments,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.ReturnChunks != nil && !*req.ReturnChunks {
		set = withoutContent(set)
	}
	writeJSON(w, http.StatusOK, set)
}

// withoutContent copies the result set with chunk text stripped. The cached
// set keeps the full text so a later ask by search_id still works.
func withoutContent(set *model.SearchResultSet) *model.SearchResultSet {
	out := *set
	out.Results = make([]model.SearchHit, len(set.Results))
	for i, h := range set.Results {
		h.Content = ""
		out.Results[i] = h
	}
	return &out
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req qa.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.asker.Ask(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrInvalidQuery, err)
	}
	return nil
}

func pathFilename(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "filename")
	filename, err := url.PathUnescape(raw)
	if err != nil || filename == "" {
		return "", fmt.Errorf("%w: bad filename", model.ErrInvalidQuery)
	}
	return filename, nil
}
