package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/antoniostano/recall/internal/session"
)

// Reserved keys inside a user record. The double underscores keep them from
// colliding with caller-supplied session ids.
const (
	metadataKey  = "__metadata__"
	summariesKey = "__summaries__"
)

// SummarizerAuthor marks synthetic turns produced by background summarization.
const SummarizerAuthor = "memory_summarizer"

// UserKey derives the per-user key under which all of a user's sessions,
// summaries and metadata are stored.
func UserKey(appName, userID string) string {
	return appName + "/" + userID
}

// Turn is one recorded utterance. Timestamp is RFC 3339, empty when unknown.
type Turn struct {
	Timestamp string          `json:"timestamp,omitempty"`
	Author    string          `json:"author"`
	Content   session.Content `json:"content"`
}

// Text joins the turn's non-empty text parts with single spaces.
func (t Turn) Text() string {
	var b strings.Builder
	for _, p := range t.Content.Parts {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// MemoryEntry is one search result reconstructed from a stored turn.
type MemoryEntry struct {
	Content   session.Content `json:"content"`
	Author    string          `json:"author"`
	Timestamp string          `json:"timestamp"`
}

// Metadata tracks per-user turn accounting.
//
// TotalTurns counts every non-empty turn ever ingested for the user and never
// decreases. LastSummarizedTurnCount never exceeds TotalTurns; the difference
// between the two is the un-summarized backlog.
type Metadata struct {
	TotalTurns              int `json:"total_turns"`
	LastSummarizedTurnCount int `json:"last_summarized_turn_count"`
}

// UserRecord holds everything stored for one app/user pair.
type UserRecord struct {
	Sessions  map[string][]Turn
	Summaries []Turn
	Meta      Metadata
}

func NewUserRecord() *UserRecord {
	return &UserRecord{Sessions: make(map[string][]Turn)}
}

// sessionIDs returns the record's session ids in ascending order so scans and
// transcripts are deterministic across runs and reloads.
func (r *UserRecord) sessionIDs() []string {
	ids := make([]string, 0, len(r.Sessions))
	for id := range r.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON flattens the record into the on-disk shape: one key per session
// id plus the reserved __metadata__ and __summaries__ entries.
func (r *UserRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Sessions)+2)
	for id, turns := range r.Sessions {
		flat[id] = turns
	}
	flat[metadataKey] = r.Meta
	if len(r.Summaries) > 0 {
		flat[summariesKey] = r.Summaries
	}
	return json.Marshal(flat)
}

func (r *UserRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	r.Sessions = make(map[string][]Turn, len(flat))
	r.Summaries = nil
	r.Meta = Metadata{}
	for key, raw := range flat {
		switch key {
		case metadataKey:
			if err := json.Unmarshal(raw, &r.Meta); err != nil {
				return fmt.Errorf("decode %s: %w", metadataKey, err)
			}
		case summariesKey:
			if err := json.Unmarshal(raw, &r.Summaries); err != nil {
				return fmt.Errorf("decode %s: %w", summariesKey, err)
			}
		default:
			var turns []Turn
			if err := json.Unmarshal(raw, &turns); err != nil {
				return fmt.Errorf("decode session %q: %w", key, err)
			}
			r.Sessions[key] = turns
		}
	}
	return nil
}

// Document is the entire persisted state: one record per UserKey.
type Document map[string]*UserRecord

// turnFromEvent converts a session event into a storable turn. Events without
// any non-empty text part are dropped; turns are never persisted empty.
func turnFromEvent(ev session.Event) (Turn, bool) {
	if ev.Content == nil {
		return Turn{}, false
	}
	parts := make([]session.Part, 0, len(ev.Content.Parts))
	for _, p := range ev.Content.Parts {
		if p.Text == "" {
			continue
		}
		parts = append(parts, session.Part{Text: p.Text})
	}
	if len(parts) == 0 {
		return Turn{}, false
	}

	var ts string
	if ev.Timestamp != 0 {
		sec := int64(ev.Timestamp)
		nsec := int64((ev.Timestamp - float64(sec)) * 1e9)
		ts = time.Unix(sec, nsec).UTC().Format(time.RFC3339)
	}
	return Turn{
		Timestamp: ts,
		Author:    ev.Author,
		Content:   session.Content{Role: ev.Content.Role, Parts: parts},
	}, true
}
