package memory

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/recall/internal/session"
)

const summarizeMemoryPrompt = "Summarize the key facts from this conversation that are worth remembering " +
	"for future interactions. Be concise."

// summarize condenses a user's whole history (existing summaries plus all
// session turns) into a single synthetic summary turn. It runs in the
// background; any failure is logged and leaves memory state untouched, and
// the next threshold crossing retries naturally.
func (s *Service) summarize(ctx context.Context, appName, userID string) {
	s.sumMu.Lock()
	defer s.sumMu.Unlock()

	key := UserKey(appName, userID)

	var (
		total, last int
		transcript  string
	)
	s.mu.RLock()
	rec := s.doc[key]
	if rec != nil {
		total = rec.Meta.TotalTurns
		last = rec.Meta.LastSummarizedTurnCount
		transcript = rec.transcript()
	}
	s.mu.RUnlock()

	// Re-check the backlog: an earlier run may already have consumed it.
	if rec == nil || total-last < s.opts.Threshold {
		s.countSummarization("skipped")
		return
	}
	if transcript == "" {
		s.countSummarization("skipped")
		return
	}

	start := time.Now()
	summary, err := s.opts.Client.Generate(ctx, s.opts.ModelID, transcript+"\n\n"+summarizeMemoryPrompt)
	if err != nil {
		log.Printf("memory: background summarization for %s failed: %v", key, err)
		s.countSummarization("error")
		return
	}

	turn := Turn{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Author:    SummarizerAuthor,
		Content: session.Content{
			Role:  "model",
			Parts: []session.Part{{Text: "Memory Summary: " + summary}},
		},
	}

	s.mu.Lock()
	rec = s.doc[key]
	if rec == nil {
		s.mu.Unlock()
		s.countSummarization("skipped")
		return
	}
	rec.Summaries = []Turn{turn}
	// Credit only the turn count observed before the model call. Turns that
	// arrived while it ran stay in the backlog and re-trigger later.
	rec.Meta.LastSummarizedTurnCount = total
	saveErr := s.store.Save(ctx, s.doc)
	s.mu.Unlock()

	if saveErr != nil {
		log.Printf("memory: persisting summary for %s failed: %v", key, saveErr)
		s.countSummarization("error")
		return
	}

	if m := s.opts.Metrics; m != nil {
		m.ObserveSummarizeLatency(time.Since(start))
	}
	s.countSummarization("ok")
}

// transcript renders the user's history for the summarization prompt:
// existing summaries first, then every session's turns in ascending
// session-id order.
func (r *UserRecord) transcript() string {
	var b strings.Builder
	for _, t := range r.Summaries {
		if text := t.Text(); text != "" {
			b.WriteString("Previous Summary: ")
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	for _, id := range r.sessionIDs() {
		for _, t := range r.Sessions[id] {
			text := t.Text()
			if text == "" {
				continue
			}
			author := t.Author
			if author == "" {
				author = "unknown"
			}
			b.WriteString(author)
			b.WriteString(": ")
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (s *Service) countSummarization(result string) {
	if m := s.opts.Metrics; m != nil {
		m.Summarizations.WithLabelValues(result).Inc()
	}
}
