package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/docq-ai/docq-go/internal/rag"
)

// defaultSearchK is the number of results returned when the caller does not
// specify k.
const defaultSearchK = 5

// maxSearchK caps the number of results a single search may request.
const maxSearchK = 20

// buildSource converts a retrieval result into its JSON citation shape.
// rank is 1-indexed. When truncate is true the text is shortened for display.
func buildSource(rank int, r rag.Result, truncate bool) sourceChunk {
	text := r.Text
	if truncate {
		text = rag.DisplayText(text)
	}
	return sourceChunk{
		Text:           text,
		Filename:       r.Filename,
		DocumentID:     r.DocumentID,
		ChunkIndex:     r.Index,
		StartChar:      r.StartChar,
		EndChar:        r.EndChar,
		Distance:       r.Distance,
		RelevanceScore: rag.Score(r.Distance),
		Citation:       rag.Citation(rank, r),
	}
}

// handleSearch handles GET /api/search?q=...&k=N. It performs owner-scoped
// semantic search and returns every hit with full text and citation metadata.
// Unlike /api/query, no relevance filtering is applied.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	k := defaultSearchK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSearchK {
			writeError(w, http.StatusBadRequest, "k must be an integer between 1 and 20")
			return
		}
		k = parsed
	}

	results, err := s.deps.Retriever.Retrieve(r.Context(), ownerID, q, k)
	if err != nil {
		ownerLog(r, ownerID).Error("search", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := searchResponse{Query: q, Results: make([]searchResult, 0, len(results))}
	for i, res := range results {
		resp.Results = append(resp.Results, searchResult{
			sourceChunk: buildSource(i+1, res, false),
			Slot:        res.Slot,
		})
	}
	resp.TotalResults = len(resp.Results)

	writeJSON(w, http.StatusOK, resp)
}

// handleQuery handles POST /api/query: the single-shot pipeline that
// retrieves relevant chunks and generates an answer with citations.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	log := ownerLog(r, ownerID)

	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	outcome := "ok"
	timer := s.queryTimer(&outcome)
	defer timer()

	answer, err := s.deps.Asker.Ask(r.Context(), ownerID, req.Question, req.K)
	if err != nil {
		outcome = "error"
		if errors.Is(err, rag.ErrGeneratorUnavailable) {
			log.Warn("query: generator unavailable", slog.Any("error", err))
			writeError(w, http.StatusServiceUnavailable, "LLM service unavailable. Error: "+err.Error())
			return
		}
		log.Error("query", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	resp := queryResponse{
		Question: answer.Question,
		Answer:   answer.Text,
		Sources:  make([]sourceChunk, 0, len(answer.Sources)),
	}
	for i, src := range answer.Sources {
		resp.Sources = append(resp.Sources, buildSource(i+1, src, true))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleAgentQuery handles POST /api/query/agent: the staged pipeline that
// retrieves, reasons about, and answers the question, returning the full
// conversation trace alongside the citations.
func (s *Server) handleAgentQuery(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	log := ownerLog(r, ownerID)

	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	outcome := "ok"
	timer := s.queryTimer(&outcome)
	defer timer()

	result, err := s.deps.Agent.Run(r.Context(), ownerID, req.Question, req.K)
	if err != nil {
		outcome = "error"
		log.Error("agent query", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Agent execution failed: "+err.Error())
		return
	}

	resp := agentQueryResponse{
		Question:  result.Question,
		Answer:    result.Answer,
		Reasoning: result.Reasoning,
		Sources:   make([]sourceChunk, 0, len(result.Sources)),
		Messages:  make([]agentMessage, 0, len(result.Messages)),
	}
	for i, src := range result.Sources {
		resp.Sources = append(resp.Sources, buildSource(i+1, src, true))
	}
	for _, m := range result.Messages {
		resp.Messages = append(resp.Messages, agentMessage{Role: string(m.Role), Content: m.Content})
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeQueryRequest parses and validates the shared query request body.
// On failure it writes the error response and returns ok=false.
func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return req, false
	}
	if req.K <= 0 {
		req.K = defaultSearchK
	}
	if req.K > maxSearchK {
		req.K = maxSearchK
	}
	return req, true
}
