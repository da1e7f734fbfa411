package session

import "time"

// Part is one text fragment inside an event's content.
type Part struct {
	Text string `json:"text"`
}

// Content carries the role and the ordered text parts of one event.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Event is a single recorded utterance within a session.
type Event struct {
	Author string `json:"author"`
	// Content may be nil for control events that carry no text.
	Content *Content `json:"content,omitempty"`
	// Timestamp is seconds since the Unix epoch; 0 means unknown.
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Text joins the non-empty text parts of the event with single spaces.
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	out := ""
	for _, p := range e.Content.Parts {
		if p.Text == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p.Text
	}
	return out
}

// CreateRequest defines the payload for creating a new session.
type CreateRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	AppName         string    `json:"app_name"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
