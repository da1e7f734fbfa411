package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/recall/internal/llm"
	"github.com/antoniostano/recall/internal/memory"
	"github.com/antoniostano/recall/internal/observability"
	"github.com/antoniostano/recall/internal/policy"
	"github.com/antoniostano/recall/internal/session"
)

// maxRecalledMemories caps how many matching memory entries are folded into
// the system prompt. Summaries scan first, so they survive the cap.
const maxRecalledMemories = 8

// Runner drives one agent across live sessions: it appends events, recalls
// relevant memories, streams model output, and flushes ended sessions into
// long-term memory.
type Runner struct {
	agent    Definition
	client   llm.Client
	sessions *session.Manager
	memory   *memory.Service
	metrics  *observability.Metrics
	redact   bool
}

func NewRunner(agent Definition, client llm.Client, sessions *session.Manager, mem *memory.Service, metrics *observability.Metrics, redactSecrets bool) (*Runner, error) {
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		agent:    agent,
		client:   client,
		sessions: sessions,
		memory:   mem,
		metrics:  metrics,
		redact:   redactSecrets,
	}, nil
}

// RunTurn processes one user message on an active session, forwarding
// assistant deltas to onDelta, and returns the full reply text.
func (r *Runner) RunTurn(ctx context.Context, sessionID, userText string, onDelta llm.DeltaHandler) (string, error) {
	turnStart := time.Now()

	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	stored := userText
	if r.redact {
		if redacted, changed := policy.RedactSecrets(userText); changed {
			stored = redacted
		}
	}
	userEvent := session.Event{
		Author:  "user",
		Content: &session.Content{Role: "user", Parts: []session.Part{{Text: stored}}},
	}
	if err := r.sessions.AppendEvent(sessionID, userEvent); err != nil {
		return "", err
	}

	system := r.agent.SystemPrompt()
	if r.memory != nil {
		recallStart := time.Now()
		entries, err := r.memory.SearchMemory(ctx, sess.AppName, sess.UserID, stored)
		if err != nil {
			// A degraded recall should not kill the turn.
			log.Printf("agent: memory recall failed for session %s: %v", sessionID, err)
		} else if block := renderMemories(entries); block != "" {
			system += "\n\n" + block
		}
		r.metrics.ObserveStage(observability.StageMemoryRecall, time.Since(recallStart))
	}

	messages := chatMessages(sess.Events)
	messages = append(messages, llm.Message{Role: "user", Content: stored})

	var firstDelta time.Duration
	resp, err := r.client.StreamChat(ctx, llm.ChatRequest{
		Model:    r.agent.Model,
		System:   system,
		Messages: messages,
	}, func(delta string) error {
		if firstDelta == 0 {
			firstDelta = time.Since(turnStart)
			r.metrics.ObserveStage(observability.StageFirstDelta, firstDelta)
		}
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.ProviderErrors.WithLabelValues("chat", "stream").Inc()
		}
		return "", fmt.Errorf("agent %s: %w", r.agent.Name, err)
	}
	r.metrics.ObserveStage(observability.StageLLMTotal, time.Since(turnStart))

	assistantEvent := session.Event{
		Author:  r.agent.Name,
		Content: &session.Content{Role: "model", Parts: []session.Part{{Text: resp.Text}}},
	}
	if err := r.sessions.AppendEvent(sessionID, assistantEvent); err != nil {
		return "", err
	}

	if r.metrics != nil {
		r.metrics.ObserveTurnLatency(time.Since(turnStart))
	}
	r.metrics.ObserveStage(observability.StageTurnTotal, time.Since(turnStart))
	return resp.Text, nil
}

// EndSession ends the session and ingests its transcript into long-term
// memory. A session with no text is ingested as a no-op.
func (r *Runner) EndSession(ctx context.Context, sessionID string) error {
	sess, err := r.sessions.End(sessionID)
	if err != nil {
		return err
	}
	return r.Ingest(ctx, sess)
}

// Ingest pushes a finished session snapshot into long-term memory. It is also
// the janitor's expire hook target.
func (r *Runner) Ingest(ctx context.Context, sess *session.Session) error {
	if r.memory == nil {
		return nil
	}
	start := time.Now()
	if err := r.memory.AddSession(ctx, sess); err != nil {
		return fmt.Errorf("ingest session %s: %w", sess.ID, err)
	}
	r.metrics.ObserveStage(observability.StageMemoryIngest, time.Since(start))
	return nil
}

// chatMessages converts session history into provider-neutral chat messages.
// Events without text are skipped.
func chatMessages(events []session.Event) []llm.Message {
	out := make([]llm.Message, 0, len(events))
	for _, ev := range events {
		text := ev.Text()
		if text == "" {
			continue
		}
		role := "assistant"
		if ev.Content != nil && ev.Content.Role == "user" {
			role = "user"
		}
		out = append(out, llm.Message{Role: role, Content: text})
	}
	return out
}

func renderMemories(entries []memory.MemoryEntry) string {
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > maxRecalledMemories {
		entries = entries[:maxRecalledMemories]
	}
	var b strings.Builder
	b.WriteString("Relevant memories from past conversations:")
	for _, e := range entries {
		text := ""
		for _, p := range e.Content.Parts {
			if p.Text == "" {
				continue
			}
			if text != "" {
				text += " "
			}
			text += p.Text
		}
		if text == "" {
			continue
		}
		b.WriteString("\n- ")
		if e.Author != "" {
			b.WriteString(e.Author)
			b.WriteString(": ")
		}
		b.WriteString(text)
	}
	return b.String()
}
