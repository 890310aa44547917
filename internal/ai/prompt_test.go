package ai

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"waresponder/internal/store"
)

func TestBuildKnowledgeCap(t *testing.T) {
	long := strings.Repeat("x", 3000)
	entries := []store.KnowledgeEntry{
		{Question: long, Answer: long},
		{Question: long, Answer: long},
		{Question: long, Answer: long},
	}
	out := BuildKnowledge(entries, KnowledgeCap)
	if len(out) > KnowledgeCap {
		t.Fatalf("knowledge block is %d chars, cap is %d", len(out), KnowledgeCap)
	}

	small := BuildKnowledge([]store.KnowledgeEntry{{Question: "q", Answer: "a"}}, KnowledgeCap)
	if small != "Q: q\nA: a" {
		t.Fatalf("unexpected block %q", small)
	}
	if BuildKnowledge(nil, KnowledgeCap) != "" {
		t.Fatalf("empty corpus should produce empty block")
	}
}

func TestUserTextHistoryOldestFirst(t *testing.T) {
	now := time.Now()
	p := Prompt{
		History: []store.Exchange{
			{Question: "newest q", Answer: "newest a", At: now},
			{Question: "oldest q", Answer: "oldest a", At: now.Add(-time.Hour)},
		},
		Question: "current question",
	}
	out := p.UserText()

	oldest := strings.Index(out, "oldest q")
	newest := strings.Index(out, "newest q")
	current := strings.Index(out, "current question")
	if oldest < 0 || newest < 0 || current < 0 {
		t.Fatalf("missing sections in %q", out)
	}
	if !(oldest < newest && newest < current) {
		t.Fatalf("expected oldest-first ordering, got %q", out)
	}
}

func TestSystemTextDefaults(t *testing.T) {
	var p Prompt
	if !strings.HasPrefix(p.SystemText(), DefaultSystemPrompt) {
		t.Fatalf("expected default system prompt, got %q", p.SystemText())
	}

	p.System = "You sell shoes."
	if !strings.HasPrefix(p.SystemText(), "You sell shoes.") {
		t.Fatalf("tenant instruction should win, got %q", p.SystemText())
	}
	if !strings.Contains(p.SystemText(), "same language") {
		t.Fatalf("fixed preamble missing from %q", p.SystemText())
	}
}

func TestBuildKnowledgeCapKeepsValidUTF8(t *testing.T) {
	entries := []store.KnowledgeEntry{
		{Question: strings.Repeat("é", 50), Answer: strings.Repeat("ü", 50)},
	}
	for limit := 10; limit < 20; limit++ {
		out := BuildKnowledge(entries, limit)
		if len(out) > limit {
			t.Fatalf("limit %d exceeded: %d chars", limit, len(out))
		}
		if !utf8.ValidString(out) {
			t.Fatalf("limit %d produced invalid utf-8: %q", limit, out)
		}
	}
}
