// Package api exposes the brain over HTTP: document ingestion,
// retrieval-augmented asking, raw generation, and streaming chat.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studykit/brain/internal/answer"
	"github.com/studykit/brain/internal/kb"
	"github.com/studykit/brain/internal/provider"
)

const maxRequestBodySize = 1 << 20   // 1MB
const maxDocumentBodySize = 32 << 20 // base64-encoded PDFs inflate by a third

// Ingester indexes an uploaded document.
type Ingester interface {
	Ingest(ctx context.Context, doc []byte, sourceName string) (int, error)
}

// Asker answers questions with retrieved context.
type Asker interface {
	Ask(ctx context.Context, question string, topK int, mode provider.Mode) (answer.Answer, error)
}

// Generation routes prompts and chats to the configured backends.
type Generation interface {
	Generate(ctx context.Context, req provider.Request) (string, error)
	StreamChat(ctx context.Context, req provider.ChatRequest) <-chan provider.Fragment
}

// Summarizer produces a study summary of a document.
type Summarizer interface {
	Summarize(ctx context.Context, doc []byte, mode provider.Mode, simple bool) (string, error)
}

// Knowledge exposes knowledge base maintenance and search.
type Knowledge interface {
	Count() int
	Clear() error
	Query(question string, topK int) ([]kb.Result, error)
}

// Deps holds everything the HTTP layer needs. Token is optional; when
// empty the API is open.
type Deps struct {
	Ingest    Ingester
	Answer    Asker
	Gen       Generation
	Summarize Summarizer
	KB        Knowledge
	Token     string
}

// NewHandler builds the router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/v1/ingest", handleIngest(deps))
		r.Post("/v1/ask", handleAsk(deps))
		r.Post("/v1/generate", handleGenerate(deps))
		r.Post("/v1/chat/stream", handleChatStream(deps))
		r.Post("/v1/summarize", handleSummarize(deps))
		r.Get("/v1/knowledge", handleKnowledgeStats(deps))
		r.Delete("/v1/knowledge", handleKnowledgeClear(deps))
		r.Get("/v1/search", handleSearch(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type ingestRequest struct {
	Document string `json:"document"` // base64-encoded PDF
	Source   string `json:"source"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Document == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document is required")
			return
		}
		if req.Source == "" {
			req.Source = "uploaded"
		}

		doc, err := base64.StdEncoding.DecodeString(req.Document)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 document")
			return
		}

		chunks, err := deps.Ingest.Ingest(r.Context(), doc, req.Source)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "ingest failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"source":         req.Source,
			"chunks_indexed": chunks,
		})
	}
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Mode     string `json:"mode"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		mode, err := provider.ParseMode(req.Mode)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		ans, err := deps.Answer.Ask(r.Context(), req.Question, req.TopK, mode)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "ask failed: %v", err)
			return
		}
		if ans.Sources == nil {
			ans.Sources = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ans)
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
	Model  string `json:"model"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Prompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}
		mode, err := provider.ParseMode(req.Mode)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		text, err := deps.Gen.Generate(r.Context(), provider.Request{Prompt: req.Prompt, Mode: mode, Model: req.Model})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "generation failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}
}

type chatRequest struct {
	Messages []provider.Message `json:"messages"`
	Mode     string             `json:"mode"`
	Model    string             `json:"model"`
}

func handleChatStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}
		mode, err := provider.ParseMode(req.Mode)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		fragments := deps.Gen.StreamChat(r.Context(), provider.ChatRequest{
			Messages: req.Messages,
			Mode:     mode,
			Model:    req.Model,
		})
		streamResponse(w, fragments)
	}
}

type summarizeRequest struct {
	Document string `json:"document"` // base64-encoded PDF
	Mode     string `json:"mode"`
	Simple   bool   `json:"simple"`
}

func handleSummarize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		var req summarizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Document == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document is required")
			return
		}
		mode, err := provider.ParseMode(req.Mode)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		doc, err := base64.StdEncoding.DecodeString(req.Document)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 document")
			return
		}

		summary, err := deps.Summarize.Summarize(r.Context(), doc, mode, req.Simple)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "summarize failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"summary": summary})
	}
}

// searchResult is one search hit in the JSON response.
type searchResult struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 3, 50)
		if limit <= 0 {
			limit = 3
		}

		results, err := deps.KB.Query(query, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}

		hits := make([]searchResult, len(results))
		for i, res := range results {
			hits[i] = searchResult{Text: res.Chunk.Text, Source: res.Chunk.Source, Score: res.Score}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hits)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func handleKnowledgeStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"chunks": deps.KB.Count()})
	}
}

func handleKnowledgeClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.KB.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clear failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

// streamResponse relays fragments as server-sent events. Text fragments go
// out as data events; a terminal error becomes an error event; the stream
// ends with data: [DONE].
func streamResponse(w http.ResponseWriter, fragments <-chan provider.Fragment) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for frag := range fragments {
		if frag.Err != nil {
			payload, err := json.Marshal(map[string]string{"message": frag.Err.Error()})
			if err == nil {
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
				flusher.Flush()
			}
			return
		}
		payload, err := json.Marshal(map[string]string{"content": frag.Text})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
