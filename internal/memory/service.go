package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/antoniostano/recall/internal/observability"
	"github.com/antoniostano/recall/internal/session"
)

// DefaultSummarizationThreshold is the number of un-summarized turns that must
// accumulate for a user before background summarization fires.
const DefaultSummarizationThreshold = 25

// SummaryClient generates the consolidated summary text. Implementations may
// fail; failures leave memory state untouched.
type SummaryClient interface {
	Generate(ctx context.Context, modelID, prompt string) (string, error)
}

// Options configures a memory Service.
type Options struct {
	// Summarize enables threshold-triggered background summarization. It
	// requires Client and ModelID to be set.
	Summarize bool
	Client    SummaryClient
	ModelID   string
	// Threshold overrides DefaultSummarizationThreshold when positive.
	Threshold int
	Metrics   *observability.Metrics
}

// Service owns an in-memory mirror of the persisted document, lazily hydrated
// from its store, and keeps every user's conversation history searchable.
type Service struct {
	store Store
	opts  Options

	loadMu sync.Mutex
	loaded bool

	mu  sync.RWMutex
	doc Document

	// sumMu serializes summarization runs: at most one in flight for the
	// whole service instance, across all users.
	sumMu sync.Mutex
	wg    sync.WaitGroup
}

func New(store Store, opts Options) *Service {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSummarizationThreshold
	}
	if opts.Client == nil || opts.ModelID == "" {
		opts.Summarize = false
	}
	return &Service{
		store: store,
		opts:  opts,
		doc:   make(Document),
	}
}

// hydrate loads the document from the store on first use. Safe to call
// repeatedly and from concurrent callers.
func (s *Service) hydrate(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded {
		return nil
	}

	doc, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load memory document: %w", err)
	}
	if doc != nil {
		s.mu.Lock()
		s.doc = doc
		s.mu.Unlock()
	}
	s.loaded = true
	return nil
}

// AddSession ingests a session's events into the user's memory. Re-ingesting
// the same session id replaces that session's turns wholesale. Sessions with
// no extractable text are a silent no-op. The call returns once the document
// is persisted; summarization, when due, runs in the background.
func (s *Service) AddSession(ctx context.Context, sess *session.Session) error {
	if err := s.hydrate(ctx); err != nil {
		return err
	}

	turns := make([]Turn, 0, len(sess.Events))
	for _, ev := range sess.Events {
		if t, ok := turnFromEvent(ev); ok {
			turns = append(turns, t)
		}
	}
	if len(turns) == 0 {
		return nil
	}

	key := UserKey(sess.AppName, sess.UserID)

	s.mu.Lock()
	rec := s.doc[key]
	if rec == nil {
		rec = NewUserRecord()
		s.doc[key] = rec
	}
	rec.Sessions[sess.ID] = turns
	rec.Meta.TotalTurns += len(turns)
	total := rec.Meta.TotalTurns
	last := rec.Meta.LastSummarizedTurnCount
	saveErr := s.store.Save(ctx, s.doc)
	s.mu.Unlock()

	if saveErr != nil {
		return fmt.Errorf("save memory document: %w", saveErr)
	}

	if m := s.opts.Metrics; m != nil {
		m.SessionsIngested.Inc()
		m.TurnsIngested.Add(float64(len(turns)))
	}

	if s.opts.Summarize && total-last >= s.opts.Threshold {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.summarize(context.WithoutCancel(ctx), sess.AppName, sess.UserID)
		}()
	}
	return nil
}

// SearchMemory returns every stored turn for the user whose text shares at
// least one word token with the query. Summaries are scanned before session
// turns; sessions are scanned in ascending session-id order. No ranking and
// no limit.
func (s *Service) SearchMemory(ctx context.Context, appName, userID, query string) ([]MemoryEntry, error) {
	if err := s.hydrate(ctx); err != nil {
		return nil, err
	}

	if m := s.opts.Metrics; m != nil {
		m.MemorySearches.Inc()
	}

	terms := tokenize(query)
	entries := []MemoryEntry{}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.doc[UserKey(appName, userID)]
	if rec == nil {
		return entries, nil
	}

	scan := func(turns []Turn) {
		for _, t := range turns {
			words := tokenize(t.Text())
			if len(words) == 0 {
				continue
			}
			if !intersects(terms, words) {
				continue
			}
			entries = append(entries, MemoryEntry{
				Content:   t.Content,
				Author:    t.Author,
				Timestamp: t.Timestamp,
			})
		}
	}

	scan(rec.Summaries)
	for _, id := range rec.sessionIDs() {
		scan(rec.Sessions[id])
	}

	if m := s.opts.Metrics; m != nil {
		m.MemorySearchHits.Add(float64(len(entries)))
	}
	return entries, nil
}

// Wait blocks until all in-flight background summarizations finish. Used
// during shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

var wordPattern = regexp.MustCompile(`\w+`)

// tokenize extracts the set of lowercase word tokens (letters, digits,
// underscore) from text.
func tokenize(text string) map[string]struct{} {
	words := wordPattern.FindAllString(text, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}
