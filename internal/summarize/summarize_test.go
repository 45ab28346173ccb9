package summarize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/studykit/brain/internal/extract"
	"github.com/studykit/brain/internal/provider"
)

// scriptedGen answers prompts by pattern, recording everything it saw.
type scriptedGen struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (g *scriptedGen) Generate(ctx context.Context, req provider.Request) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()
	return g.reply(req.Prompt)
}

func (g *scriptedGen) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func pagesExtractor(pages []extract.Page) Extractor {
	return func(doc []byte, maxPages int) []extract.Page {
		if len(pages) > maxPages {
			return pages[:maxPages]
		}
		return pages
	}
}

func TestSummarize_MapThenSynthesize(t *testing.T) {
	gen := &scriptedGen{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "page summaries") {
			return "final study summary", nil
		}
		return "- a point", nil
	}}
	s := NewWithExtractor(gen, pagesExtractor([]extract.Page{
		{Number: 1, Text: "first page"},
		{Number: 2, Text: "second page"},
	}), nil)

	got, err := s.Summarize(context.Background(), []byte("pdf"), provider.ModeAuto, false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "final study summary" {
		t.Errorf("got %q", got)
	}

	prompts := gen.seen()
	if len(prompts) != 3 {
		t.Fatalf("saw %d prompts, want 2 page prompts + 1 synthesis", len(prompts))
	}
	synth := prompts[len(prompts)-1]
	if !strings.Contains(synth, "Page 1: - a point") || !strings.Contains(synth, "Page 2: - a point") {
		t.Errorf("synthesis prompt missing ordered page summaries:\n%s", synth)
	}
	if !strings.Contains(synth, "exam-style questions") {
		t.Errorf("synthesis prompt missing instructions:\n%s", synth)
	}
}

func TestSummarize_SkipsFailedPages(t *testing.T) {
	gen := &scriptedGen{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "page 2 of") {
			return "", errors.New("backend hiccup")
		}
		if strings.Contains(prompt, "page summaries") {
			return "summary without page two", nil
		}
		return "- point", nil
	}}
	s := NewWithExtractor(gen, pagesExtractor([]extract.Page{
		{Number: 1, Text: "one"},
		{Number: 2, Text: "two"},
		{Number: 3, Text: "three"},
	}), nil)

	got, err := s.Summarize(context.Background(), []byte("pdf"), provider.ModeAuto, false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "summary without page two" {
		t.Errorf("got %q", got)
	}
	var synth string
	for _, p := range gen.seen() {
		if strings.Contains(p, "page summaries") {
			synth = p
		}
	}
	if strings.Contains(synth, "Page 2:") {
		t.Errorf("failed page leaked into synthesis:\n%s", synth)
	}
	if !strings.Contains(synth, "Page 1:") || !strings.Contains(synth, "Page 3:") {
		t.Errorf("surviving pages missing from synthesis:\n%s", synth)
	}
}

func TestSummarize_AllPagesFail(t *testing.T) {
	gen := &scriptedGen{reply: func(string) (string, error) {
		return "", errors.New("down")
	}}
	s := NewWithExtractor(gen, pagesExtractor([]extract.Page{{Number: 1, Text: "x"}}), nil)

	if _, err := s.Summarize(context.Background(), []byte("pdf"), provider.ModeAuto, false); err == nil {
		t.Error("expected error when no page could be summarized")
	}
}

func TestSummarize_NoText(t *testing.T) {
	gen := &scriptedGen{reply: func(string) (string, error) { return "x", nil }}
	s := NewWithExtractor(gen, pagesExtractor(nil), nil)

	if _, err := s.Summarize(context.Background(), []byte("junk"), provider.ModeAuto, false); err == nil {
		t.Error("expected error for unreadable document")
	}
	if len(gen.seen()) != 0 {
		t.Error("backend contacted for unreadable document")
	}
}

func TestSummarize_SimpleRewrite(t *testing.T) {
	gen := &scriptedGen{reply: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "beginner-level"):
			return "like you are five", nil
		case strings.Contains(prompt, "page summaries"):
			return "dense summary", nil
		default:
			return "- point", nil
		}
	}}
	s := NewWithExtractor(gen, pagesExtractor([]extract.Page{{Number: 1, Text: "x"}}), nil)

	got, err := s.Summarize(context.Background(), []byte("pdf"), provider.ModeAuto, true)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(got, "dense summary") || !strings.Contains(got, "like you are five") {
		t.Errorf("got %q, want both the summary and the simple rewrite", got)
	}
}

func TestSummarize_PageSummaryClamped(t *testing.T) {
	gen := &scriptedGen{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "page summaries") {
			return "done", nil
		}
		return "l1\nl2\nl3\nl4\nl5", nil
	}}
	s := NewWithExtractor(gen, pagesExtractor([]extract.Page{{Number: 1, Text: "x"}}), nil)

	if _, err := s.Summarize(context.Background(), []byte("pdf"), provider.ModeAuto, false); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	var synth string
	for _, p := range gen.seen() {
		if strings.Contains(p, "page summaries") {
			synth = p
		}
	}
	if strings.Contains(synth, "l4") {
		t.Errorf("page summary not clamped to 3 lines:\n%s", synth)
	}
}

func TestFirstLines(t *testing.T) {
	if got := firstLines("a\nb\nc\nd", 3); got != "a\nb\nc" {
		t.Errorf("got %q", got)
	}
	if got := firstLines("a", 3); got != "a" {
		t.Errorf("got %q", got)
	}
}
