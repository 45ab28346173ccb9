package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/studykit/brain/internal/answer"
	"github.com/studykit/brain/internal/kb"
	"github.com/studykit/brain/internal/provider"
)

type fakeIngester struct {
	chunks    int
	err       error
	gotDoc    []byte
	gotSource string
}

func (f *fakeIngester) Ingest(ctx context.Context, doc []byte, sourceName string) (int, error) {
	f.gotDoc = doc
	f.gotSource = sourceName
	return f.chunks, f.err
}

type fakeAsker struct {
	ans answer.Answer
	err error
}

func (f *fakeAsker) Ask(ctx context.Context, question string, topK int, mode provider.Mode) (answer.Answer, error) {
	return f.ans, f.err
}

type fakeGen struct {
	text      string
	err       error
	fragments []provider.Fragment
}

func (f *fakeGen) Generate(ctx context.Context, req provider.Request) (string, error) {
	return f.text, f.err
}

func (f *fakeGen) StreamChat(ctx context.Context, req provider.ChatRequest) <-chan provider.Fragment {
	out := make(chan provider.Fragment, len(f.fragments))
	for _, frag := range f.fragments {
		out <- frag
	}
	close(out)
	return out
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, doc []byte, mode provider.Mode, simple bool) (string, error) {
	return f.summary, f.err
}

type fakeKB struct {
	count   int
	err     error
	cleared bool
	results []kb.Result
}

func (f *fakeKB) Count() int { return f.count }
func (f *fakeKB) Clear() error {
	f.cleared = true
	return f.err
}
func (f *fakeKB) Query(question string, topK int) ([]kb.Result, error) {
	return f.results, f.err
}

func testDeps() (Deps, *fakeIngester, *fakeKB) {
	ing := &fakeIngester{chunks: 5}
	kbase := &fakeKB{count: 42}
	return Deps{
		Ingest:    ing,
		Answer:    &fakeAsker{ans: answer.Answer{Text: "the answer", Sources: []string{"doc.pdf | page 1, chunk 1"}}},
		Gen:       &fakeGen{text: "generated"},
		Summarize: &fakeSummarizer{summary: "a summary"},
		KB:        kbase,
	}, ing, kbase
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	deps, _, _ := testDeps()
	h := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestIngest(t *testing.T) {
	deps, ing, _ := testDeps()
	h := NewHandler(deps)

	doc := []byte("%PDF-1.4 fake")
	w := postJSON(t, h, "/v1/ingest", map[string]string{
		"document": base64.StdEncoding.EncodeToString(doc),
		"source":   "notes.pdf",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(ing.gotDoc, doc) {
		t.Error("decoded document did not reach the ingester")
	}
	if ing.gotSource != "notes.pdf" {
		t.Errorf("source = %q", ing.gotSource)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["chunks_indexed"] != float64(5) {
		t.Errorf("chunks_indexed = %v", resp["chunks_indexed"])
	}
}

func TestIngest_BadRequests(t *testing.T) {
	deps, _, _ := testDeps()
	h := NewHandler(deps)

	for name, body := range map[string]any{
		"missing document": map[string]string{"source": "x"},
		"bad base64":       map[string]string{"document": "!!!not-base64!!!"},
	} {
		t.Run(name, func(t *testing.T) {
			if w := postJSON(t, h, "/v1/ingest", body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestIngest_DefaultSource(t *testing.T) {
	deps, ing, _ := testDeps()
	h := NewHandler(deps)

	postJSON(t, h, "/v1/ingest", map[string]string{
		"document": base64.StdEncoding.EncodeToString([]byte("doc")),
	})
	if ing.gotSource != "uploaded" {
		t.Errorf("source = %q, want uploaded", ing.gotSource)
	}
}

func TestAsk(t *testing.T) {
	deps, _, _ := testDeps()
	h := NewHandler(deps)

	w := postJSON(t, h, "/v1/ask", map[string]any{"question": "what is osmosis", "top_k": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var ans answer.Answer
	if err := json.Unmarshal(w.Body.Bytes(), &ans); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if ans.Text != "the answer" || len(ans.Sources) != 1 {
		t.Errorf("answer = %+v", ans)
	}
}

func TestAsk_Validation(t *testing.T) {
	deps, _, _ := testDeps()
	h := NewHandler(deps)

	if w := postJSON(t, h, "/v1/ask", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty question: status = %d, want 400", w.Code)
	}
	if w := postJSON(t, h, "/v1/ask", map[string]string{"question": "q", "mode": "claude"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad mode: status = %d, want 400", w.Code)
	}
}

func TestAsk_BackendFailure(t *testing.T) {
	deps, _, _ := testDeps()
	deps.Answer = &fakeAsker{err: errors.New("all backends down")}
	h := NewHandler(deps)

	if w := postJSON(t, h, "/v1/ask", map[string]string{"question": "q"}); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestGenerate(t *testing.T) {
	deps, _, _ := testDeps()
	h := NewHandler(deps)

	w := postJSON(t, h, "/v1/generate", map[string]string{"prompt": "say hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "generated") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestChatStream(t *testing.T) {
	deps, _, _ := testDeps()
	deps.Gen = &fakeGen{fragments: []provider.Fragment{{Text: "Hel"}, {Text: "lo"}}}
	h := NewHandler(deps)

	w := postJSON(t, h, "/v1/chat/stream", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, `data: {"content":"Hel"}`) || !strings.Contains(body, `data: {"content":"lo"}`) {
		t.Errorf("missing data events:\n%s", body)
	}
	if !strings.Contains(body, "data: [DONE]") {
		t.Errorf("missing terminator:\n%s", body)
	}
}

func TestChatStream_ErrorEvent(t *testing.T) {
	deps, _, _ := testDeps()
	deps.Gen = &fakeGen{fragments: []provider.Fragment{
		{Text: "partial"},
		{Err: errors.New("stream died")},
	}}
	h := NewHandler(deps)

	w := postJSON(t, h, "/v1/chat/stream", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})

	body := w.Body.String()
	if !strings.Contains(body, `data: {"content":"partial"}`) {
		t.Errorf("delivered fragment missing:\n%s", body)
	}
	if !strings.Contains(body, "event: error") || !strings.Contains(body, "stream died") {
		t.Errorf("error event missing:\n%s", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Errorf("failed stream must not end with DONE:\n%s", body)
	}
}

func TestChatStream_RequiresMessages(t *testing.T) {
	deps, _, _ := testDeps()
	h := NewHandler(deps)

	if w := postJSON(t, h, "/v1/chat/stream", map[string]any{"messages": []any{}}); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSummarize(t *testing.T) {
	deps, _, _ := testDeps()
	h := NewHandler(deps)

	w := postJSON(t, h, "/v1/summarize", map[string]any{
		"document": base64.StdEncoding.EncodeToString([]byte("pdf")),
		"simple":   true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "a summary") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestKnowledgeStatsAndClear(t *testing.T) {
	deps, _, kbase := testDeps()
	h := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/v1/knowledge", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"chunks":42`) {
		t.Errorf("stats body = %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/knowledge", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("clear status = %d", w.Code)
	}
	if !kbase.cleared {
		t.Error("Clear was not invoked")
	}
}

func TestSearch(t *testing.T) {
	deps, _, kbase := testDeps()
	kbase.results = []kb.Result{
		{Score: 0.7, Chunk: kb.Chunk{Text: "osmosis moves water", Source: "bio.pdf | page 1, chunk 1"}},
	}
	h := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=osmosis&limit=5", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var hits []searchResult
	if err := json.Unmarshal(w.Body.Bytes(), &hits); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(hits) != 1 || hits[0].Source != "bio.pdf | page 1, chunk 1" {
		t.Errorf("hits = %v", hits)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	deps, _, _ := testDeps()
	deps.Token = "secret"
	h := NewHandler(deps)

	// Health stays open.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 without auth", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/knowledge", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/knowledge", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/knowledge", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}
}
