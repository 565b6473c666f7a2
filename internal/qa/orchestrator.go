package qa

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/luminalhq/docchat/internal/llm"
	"github.com/luminalhq/docchat/internal/metrics"
	"github.com/luminalhq/docchat/internal/model"
	"github.com/luminalhq/docchat/internal/search"
	"github.com/luminalhq/docchat/internal/vectordb"
)

const (
	// Older history turns beyond this many Q/A pairs are dropped.
	maxHistoryPairs = 3

	defaultAskTopK = 8

	fallbackAnswer = "I don't know based on the provided documents."

	baseInstruction = `You are a document question answering assistant. Answer using only the numbered context passages below. Cite every claim with its passage tag, e.g. [c1], and name the source file and chunk id when asked where a fact comes from. Never invent information that is not in the passages. If the passages do not contain the answer, reply exactly: "` + fallbackAnswer + `"`
)

var citationTag = regexp.MustCompile(`\[c(\d+)\]`)

// Completer is the slice of the LLM client the orchestrator needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, p llm.Params) (string, error)
}

// Searcher runs searches when the request carries no prefetched context.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*model.SearchResultSet, error)
}

// Fetcher resolves explicit chunk ids against the store.
type Fetcher interface {
	GetByIDs(ctx context.Context, collection string, ids []string) ([]vectordb.Hit, error)
}

// ResultCache resolves search_id references.
type ResultCache interface {
	Get(id string) (model.SearchResultSet, bool)
}

// HistoryTurn is one earlier question/answer pair.
type HistoryTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Request is one ask. Context resolution precedence: ChunkIDs, then SearchID,
// then a filtered search, then a plain search.
type Request struct {
	Question         string        `json:"question"`
	TopK             int           `json:"top_k,omitempty"`
	SearchID         string        `json:"search_id,omitempty"`
	ChunkIDs         []string      `json:"chunk_ids,omitempty"`
	Documents        []string      `json:"documents,omitempty"`
	ExcludeDocuments []string      `json:"exclude_documents,omitempty"`
	History          []HistoryTurn `json:"conversation_history,omitempty"`
	SearchStrategy   string        `json:"search_strategy,omitempty"`
	SystemPrompt     string        `json:"system_prompt,omitempty"`
}

// Response is one answered question with its provenance.
type Response struct {
	Answer         string           `json:"answer"`
	Citations      []model.Citation `json:"citations"`
	RawCitations   []model.Citation `json:"raw_citations"`
	Sources        []string         `json:"sources"`
	SearchID       string           `json:"search_id,omitempty"`
	ContextSource  string           `json:"context_source"`
	ProcessingTime float64          `json:"processing_time"`
}

// Orchestrator resolves context, prompts the model, and reconciles the
// citations it claims against the passages it was given.
type Orchestrator struct {
	completer Completer
	searcher  Searcher
	fetcher   Fetcher
	cache     ResultCache
	log       *zap.Logger

	maxChunks         int
	citationThreshold float64
}

func NewOrchestrator(completer Completer, searcher Searcher, fetcher Fetcher, cache ResultCache, maxChunks int, citationThreshold float64, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxChunks <= 0 {
		maxChunks = 15
	}
	return &Orchestrator{
		completer:         completer,
		searcher:          searcher,
		fetcher:           fetcher,
		cache:             cache,
		log:               logger,
		maxChunks:         maxChunks,
		citationThreshold: citationThreshold,
	}
}

// Ask answers one question against the indexed documents.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if strings.TrimSpace(req.Question) == "" {
		metrics.AsksTotal.WithLabelValues("none", "error").Inc()
		return nil, fmt.Errorf("%w: empty question", model.ErrInvalidQuery)
	}

	hits, searchID, source, err := o.resolveContext(ctx, req)
	if err != nil {
		metrics.AsksTotal.WithLabelValues(source, "error").Inc()
		return nil, err
	}
	if len(hits) > o.maxChunks {
		hits = hits[:o.maxChunks]
	}

	if len(hits) == 0 {
		metrics.AsksTotal.WithLabelValues(source, "ok").Inc()
		metrics.AskDuration.Observe(time.Since(start).Seconds())
		return &Response{
			Answer:         fallbackAnswer,
			Citations:      []model.Citation{},
			RawCitations:   []model.Citation{},
			Sources:        []string{},
			SearchID:       searchID,
			ContextSource:  source,
			ProcessingTime: time.Since(start).Seconds(),
		}, nil
	}

	answer, err := o.completer.Complete(ctx, o.buildMessages(req, hits), llm.Params{})
	if err != nil {
		metrics.AsksTotal.WithLabelValues(source, "error").Inc()
		return nil, err
	}

	citations := o.reconcileCitations(answer, hits)
	raw := make([]model.Citation, len(hits))
	for i, h := range hits {
		raw[i] = model.NewCitation(h)
	}

	metrics.AsksTotal.WithLabelValues(source, "ok").Inc()
	metrics.AskDuration.Observe(time.Since(start).Seconds())
	return &Response{
		Answer:         answer,
		Citations:      citations,
		RawCitations:   raw,
		Sources:        sources(citations),
		SearchID:       searchID,
		ContextSource:  source,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// resolveContext picks the context passages by precedence and reports where
// they came from.
func (o *Orchestrator) resolveContext(ctx context.Context, req Request) ([]model.SearchHit, string, string, error) {
	if len(req.ChunkIDs) > 0 {
		hits, err := o.fetchByIDs(ctx, req.ChunkIDs)
		return hits, "", "chunk_ids", err
	}

	if req.SearchID != "" && o.cache != nil {
		if set, ok := o.cache.Get(req.SearchID); ok {
			return set.Results, set.SearchID, "search_id", nil
		}
		// Expired or unknown id: fall through to a fresh search.
		o.log.Debug("search_id not in cache, re-searching", zap.String("search_id", req.SearchID))
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultAskTopK
	}
	sreq := search.Request{
		Query:            req.Question,
		TopK:             topK,
		Strategy:         req.SearchStrategy,
		Documents:        req.Documents,
		ExcludeDocuments: req.ExcludeDocuments,
	}
	set, err := o.searcher.Search(ctx, sreq)
	if err != nil {
		return nil, "", "search", err
	}
	source := "search"
	if len(req.Documents) > 0 || len(req.ExcludeDocuments) > 0 {
		source = "filtered_search"
	}
	return set.Results, set.SearchID, source, nil
}

// fetchByIDs resolves explicit chunk ids, grouped per collection. Fetched
// passages are pinned context, so they score 1.0. Unknown ids are skipped.
func (o *Orchestrator) fetchByIDs(ctx context.Context, ids []string) ([]model.SearchHit, error) {
	byCollection := make(map[string][]string)
	order := make(map[string]int, len(ids))
	for i, id := range ids {
		_, collection, _, err := model.ParseChunkID(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidQuery, err)
		}
		byCollection[collection] = append(byCollection[collection], id)
		order[id] = i
	}

	var hits []model.SearchHit
	for collection, group := range byCollection {
		got, err := o.fetcher.GetByIDs(ctx, collection, group)
		if err != nil {
			return nil, err
		}
		for _, h := range got {
			sh := model.SearchHit{
				Content:    h.Content,
				Score:      1.0,
				ChunkID:    h.ID,
				Collection: collection,
				Metadata:   h.Metadata,
			}
			if doc, ok := h.Metadata["document"].(string); ok {
				sh.Document = doc
			} else if doc, _, _, err := model.ParseChunkID(h.ID); err == nil {
				sh.Document = doc
			}
			hits = append(hits, sh)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return order[hits[i].ChunkID] < order[hits[j].ChunkID] })
	return hits, nil
}

// buildMessages assembles the chat transcript: base instruction, context
// block, trimmed history, the caller's formatting directive, the question.
func (o *Orchestrator) buildMessages(req Request, hits []model.SearchHit) []llm.Message {
	var sb strings.Builder
	sb.WriteString(baseInstruction)
	sb.WriteString("\n\nContext passages:\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "[c%d] (%s / %s): %s\n", i+1, h.Document, h.ChunkID, h.Content)
	}

	msgs := []llm.Message{{Role: openai.ChatMessageRoleSystem, Content: sb.String()}}

	history := req.History
	if len(history) > maxHistoryPairs {
		history = history[len(history)-maxHistoryPairs:]
	}
	for _, turn := range history {
		msgs = append(msgs,
			llm.Message{Role: openai.ChatMessageRoleUser, Content: turn.Question},
			llm.Message{Role: openai.ChatMessageRoleAssistant, Content: turn.Answer},
		)
	}

	if sp := strings.TrimSpace(req.SystemPrompt); sp != "" {
		msgs = append(msgs, llm.Message{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Formatting directive from the caller: " + sp,
		})
	}

	msgs = append(msgs, llm.Message{Role: openai.ChatMessageRoleUser, Content: req.Question})
	return msgs
}

// reconcileCitations keeps passages that clear the relevance threshold and
// were actually tagged in the answer. A model that cited nothing gets its two
// best passages attributed; if nothing clears the threshold, the single best
// passage stands in.
func (o *Orchestrator) reconcileCitations(answer string, hits []model.SearchHit) []model.Citation {
	cited := make(map[int]bool)
	for _, m := range citationTag.FindAllStringSubmatch(answer, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(hits) {
			cited[n-1] = true
		}
	}

	ordered := make([]int, len(hits))
	for i := range hits {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool { return hits[ordered[a]].Score > hits[ordered[b]].Score })

	var kept []model.Citation
	if len(cited) > 0 {
		for _, i := range ordered {
			if cited[i] && hits[i].Score >= o.citationThreshold {
				kept = append(kept, model.NewCitation(hits[i]))
			}
		}
	} else {
		for _, i := range ordered {
			if hits[i].Score >= o.citationThreshold {
				kept = append(kept, model.NewCitation(hits[i]))
				if len(kept) == 2 {
					break
				}
			}
		}
	}
	if len(kept) == 0 {
		kept = []model.Citation{model.NewCitation(hits[ordered[0]])}
	}
	return kept
}

// sources lists distinct documents in first-appearance order.
func sources(citations []model.Citation) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range citations {
		if c.Document != "" && !seen[c.Document] {
			seen[c.Document] = true
			out = append(out, c.Document)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
