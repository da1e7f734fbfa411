package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager("recall", time.Minute)
	s := m.Create("u1", "")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.AppName != "recall" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
}

func TestManagerCreateKeepsRequestedID(t *testing.T) {
	m := NewManager("recall", time.Minute)
	s := m.Create("u1", "sess-42")
	if s.ID != "sess-42" {
		t.Fatalf("ID = %q, want %q", s.ID, "sess-42")
	}

	again := m.Create("u2", "sess-42")
	if again.UserID != "u1" {
		t.Fatalf("re-create of active id replaced owner: UserID = %q", again.UserID)
	}
}

func TestManagerAppendEvent(t *testing.T) {
	m := NewManager("recall", time.Minute)
	s := m.Create("u1", "")

	ev := Event{
		Author:  "user",
		Content: &Content{Role: "user", Parts: []Part{{Text: "hello"}}},
	}
	if err := m.AppendEvent(s.ID, ev); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(got.Events))
	}
	if got.Events[0].Timestamp == 0 {
		t.Fatalf("event timestamp was not stamped")
	}

	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := m.AppendEvent(s.ID, ev); err == nil {
		t.Fatalf("AppendEvent() on ended session should fail")
	}
}

func TestManagerGetReturnsSnapshot(t *testing.T) {
	m := NewManager("recall", time.Minute)
	s := m.Create("u1", "")
	if err := m.AppendEvent(s.ID, Event{Author: "user", Content: &Content{Parts: []Part{{Text: "one"}}}}); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	snap, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	snap.Events[0].Author = "mutated"

	fresh, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fresh.Events[0].Author != "user" {
		t.Fatalf("snapshot mutation leaked into the manager: author = %q", fresh.Events[0].Author)
	}
}

func TestManagerUnknownSession(t *testing.T) {
	m := NewManager("recall", time.Minute)
	if _, err := m.Get("nope"); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := m.Touch("nope"); err != ErrNotFound {
		t.Fatalf("Touch() error = %v, want ErrNotFound", err)
	}
	if _, err := m.End("nope"); err != ErrNotFound {
		t.Fatalf("End() error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresInactiveAndFiresHook(t *testing.T) {
	m := NewManager("recall", 30*time.Millisecond)

	var mu sync.Mutex
	var expired []*Session
	m.SetExpireHook(func(s *Session) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, s)
	})

	s := m.Create("u1", "")
	if err := m.AppendEvent(s.ID, Event{Author: "user", Content: &Content{Parts: []Part{{Text: "hi"}}}}); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(expired)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("janitor never expired the idle session")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if expired[0].ID != s.ID {
		t.Fatalf("expired ID = %q, want %q", expired[0].ID, s.ID)
	}
	if expired[0].Status != StatusEnded {
		t.Fatalf("expired status = %q, want %q", expired[0].Status, StatusEnded)
	}
	if len(expired[0].Events) != 1 {
		t.Fatalf("expired snapshot len(Events) = %d, want 1", len(expired[0].Events))
	}
}

func TestManagerActiveCount(t *testing.T) {
	m := NewManager("recall", time.Minute)
	a := m.Create("u1", "")
	m.Create("u2", "")
	if got := m.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", got)
	}
	if _, err := m.End(a.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", got)
	}
}

func TestEventText(t *testing.T) {
	ev := Event{Content: &Content{Parts: []Part{{Text: "hello"}, {Text: ""}, {Text: "world"}}}}
	if got := ev.Text(); got != "hello world" {
		t.Fatalf("Text() = %q, want %q", got, "hello world")
	}
	if got := (Event{}).Text(); got != "" {
		t.Fatalf("Text() on nil content = %q, want empty", got)
	}
}
