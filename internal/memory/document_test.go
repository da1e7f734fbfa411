package memory

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/antoniostano/recall/internal/session"
)

func TestUserRecordJSONRoundTrip(t *testing.T) {
	rec := NewUserRecord()
	rec.Sessions["s1"] = []Turn{{
		Timestamp: "2026-01-02T03:04:05Z",
		Author:    "user",
		Content:   session.Content{Role: "user", Parts: []session.Part{{Text: "hello"}}},
	}}
	rec.Summaries = []Turn{{
		Author:  SummarizerAuthor,
		Content: session.Content{Role: "model", Parts: []session.Part{{Text: "Memory Summary: hi"}}},
	}}
	rec.Meta = Metadata{TotalTurns: 7, LastSummarizedTurnCount: 5}

	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// The on-disk shape is flat: session ids next to the reserved keys.
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("Unmarshal(flat) error = %v", err)
	}
	for _, key := range []string{"s1", "__metadata__", "__summaries__"} {
		if _, ok := flat[key]; !ok {
			t.Fatalf("marshaled record is missing key %q: %s", key, raw)
		}
	}

	var back UserRecord
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal(record) error = %v", err)
	}
	if back.Meta != rec.Meta {
		t.Fatalf("Meta = %+v, want %+v", back.Meta, rec.Meta)
	}
	if len(back.Sessions) != 1 || len(back.Sessions["s1"]) != 1 {
		t.Fatalf("Sessions = %+v, want one session with one turn", back.Sessions)
	}
	if got := back.Sessions["s1"][0].Text(); got != "hello" {
		t.Fatalf("session turn text = %q, want %q", got, "hello")
	}
	if len(back.Summaries) != 1 || back.Summaries[0].Author != SummarizerAuthor {
		t.Fatalf("Summaries = %+v, want the summarizer turn", back.Summaries)
	}
}

func TestUserRecordOmitsEmptySummaries(t *testing.T) {
	rec := NewUserRecord()
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(raw), "__summaries__") {
		t.Fatalf("record without summaries still wrote the reserved key: %s", raw)
	}
	if !strings.Contains(string(raw), "__metadata__") {
		t.Fatalf("record is missing metadata: %s", raw)
	}
}

func TestTurnFromEventFiltersEmptyParts(t *testing.T) {
	ev := session.Event{
		Author: "user",
		Content: &session.Content{
			Role:  "user",
			Parts: []session.Part{{Text: ""}, {Text: "kept"}, {Text: ""}},
		},
		Timestamp: 1700000000.5,
	}
	turn, ok := turnFromEvent(ev)
	if !ok {
		t.Fatalf("turnFromEvent() dropped an event with text")
	}
	if len(turn.Content.Parts) != 1 || turn.Content.Parts[0].Text != "kept" {
		t.Fatalf("parts = %+v, want only the non-empty part", turn.Content.Parts)
	}
	if turn.Timestamp != "2023-11-14T22:13:20Z" {
		t.Fatalf("timestamp = %q, want RFC 3339 of the epoch seconds", turn.Timestamp)
	}

	if _, ok := turnFromEvent(session.Event{Author: "user"}); ok {
		t.Fatalf("turnFromEvent() kept an event without content")
	}
	empty := session.Event{Author: "user", Content: &session.Content{Parts: []session.Part{{Text: ""}}}}
	if _, ok := turnFromEvent(empty); ok {
		t.Fatalf("turnFromEvent() kept an event with only empty parts")
	}
}

func TestUserKey(t *testing.T) {
	if got := UserKey("app", "alice"); got != "app/alice" {
		t.Fatalf("UserKey() = %q, want %q", got, "app/alice")
	}
}

func TestTokenize(t *testing.T) {
	set := tokenize("My phone is 123456, really!")
	for _, w := range []string{"my", "phone", "is", "123456", "really"} {
		if _, ok := set[w]; !ok {
			t.Fatalf("tokenize() is missing %q: %v", w, set)
		}
	}
	if _, ok := set["123456,"]; ok {
		t.Fatalf("tokenize() kept punctuation: %v", set)
	}
	if len(tokenize("!!! ...")) != 0 {
		t.Fatalf("tokenize() of punctuation-only text is non-empty")
	}
}
