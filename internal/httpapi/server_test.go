package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/recall/internal/agent"
	"github.com/antoniostano/recall/internal/config"
	"github.com/antoniostano/recall/internal/llm"
	"github.com/antoniostano/recall/internal/memory"
	"github.com/antoniostano/recall/internal/protocol"
	"github.com/antoniostano/recall/internal/session"
)

func newTestServer(t *testing.T) (*Server, *llm.MockClient) {
	t.Helper()

	cfg := config.Config{
		SessionInactivityTimeout: time.Minute,
		AgentName:                "recall",
		AllowAnyOrigin:           true,
		MemoryRedactSecrets:      true,
	}
	sessions := session.NewManager(cfg.AgentName, cfg.SessionInactivityTimeout)
	store := memory.NewFileStore(filepath.Join(t.TempDir(), "memory.json"), "recall.memory")
	mem := memory.New(store, memory.Options{})
	client := llm.NewMockClient()
	runner, err := agent.NewRunner(agent.Definition{
		Name:        "recall",
		Model:       "mock-model",
		Instruction: "Be helpful.",
	}, client, sessions, mem, nil, cfg.MemoryRedactSecrets)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return New(cfg, sessions, runner, mem, nil), client
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, handler http.Handler, userID string) string {
	t.Helper()
	rec := postJSON(t, handler, "/v1/sessions", session.CreateRequest{UserID: userID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var resp session.CreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("create response has empty session_id")
	}
	return resp.SessionID
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestCreateSessionDefaultsUser(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/v1/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var resp session.CreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "anonymous" {
		t.Errorf("UserID = %q, want %q", resp.UserID, "anonymous")
	}
	if resp.Status != session.StatusActive {
		t.Errorf("Status = %q, want %q", resp.Status, session.StatusActive)
	}
}

func TestSendMessageReturnsReply(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	id := createSession(t, handler, "alice")

	rec := postJSON(t, handler, "/v1/sessions/"+id+"/messages", messageRequest{Text: "hello there"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var resp messageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Reply, "hello there") {
		t.Errorf("Reply = %q, want it to echo the user text", resp.Reply)
	}
}

func TestSendMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	id := createSession(t, handler, "alice")

	rec := postJSON(t, handler, "/v1/sessions/"+id+"/messages", messageRequest{Text: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank text status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = postJSON(t, handler, "/v1/sessions/nope/messages", messageRequest{Text: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestEndSessionFlushesAndSearches(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	id := createSession(t, handler, "alice")

	rec := postJSON(t, handler, "/v1/sessions/"+id+"/messages", messageRequest{Text: "my dog is named Biscuit"})
	if rec.Code != http.StatusOK {
		t.Fatalf("message status = %d: %s", rec.Code, rec.Body)
	}

	rec = postJSON(t, handler, "/v1/sessions/"+id+"/end", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d: %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/memory/search?user_id=alice&q=biscuit", nil)
	searchRec := httptest.NewRecorder()
	handler.ServeHTTP(searchRec, req)
	if searchRec.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", searchRec.Code, searchRec.Body)
	}
	var resp searchResponse
	if err := json.Unmarshal(searchRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(resp.Memories) == 0 {
		t.Fatal("search returned no memories, want at least the user turn")
	}
	found := false
	for _, m := range resp.Memories {
		for _, p := range m.Content.Parts {
			if strings.Contains(p.Text, "Biscuit") {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("no memory mentions Biscuit: %+v", resp.Memories)
	}
}

func TestSearchRequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/memory/search?q=cat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestEndSessionUnknown(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rec := postJSON(t, handler, "/v1/sessions/nope/end", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestPerfLatencyWithoutMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/perf/latency", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWebsocketChat(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createSession(t, srv.Router(), "alice")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/ws?session_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.UserText{
		Type:      protocol.TypeUserText,
		SessionID: id,
		Text:      "hello over websocket",
	}); err != nil {
		t.Fatalf("write user_text: %v", err)
	}

	var sawDelta bool
	var done protocol.AssistantDone
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type == protocol.TypeAssistantDelta {
			sawDelta = true
			continue
		}
		if env.Type == protocol.TypeAssistantDone {
			if err := json.Unmarshal(data, &done); err != nil {
				t.Fatalf("decode assistant_done: %v", err)
			}
			break
		}
		t.Fatalf("unexpected message type %q: %s", env.Type, data)
	}
	if !sawDelta {
		t.Error("no assistant_delta received before assistant_done")
	}
	if !strings.Contains(done.Text, "hello over websocket") {
		t.Errorf("done.Text = %q, want it to echo the user text", done.Text)
	}

	if err := conn.WriteJSON(protocol.EndSession{
		Type:      protocol.TypeEndSession,
		SessionID: id,
	}); err != nil {
		t.Fatalf("write end_session: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ended protocol.SessionEnded
	if err := conn.ReadJSON(&ended); err != nil {
		t.Fatalf("read session_ended: %v", err)
	}
	if ended.Type != protocol.TypeSessionEnded {
		t.Errorf("type = %q, want %q", ended.Type, protocol.TypeSessionEnded)
	}
}

func TestWebsocketRejectsBadPayload(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createSession(t, srv.Router(), "alice")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/ws?session_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var errEvent protocol.ErrorEvent
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("read error_event: %v", err)
	}
	if errEvent.Type != protocol.TypeErrorEvent {
		t.Errorf("type = %q, want %q", errEvent.Type, protocol.TypeErrorEvent)
	}
	if errEvent.Code != "invalid_message" {
		t.Errorf("code = %q, want %q", errEvent.Code, "invalid_message")
	}
}

func TestWebsocketRequiresKnownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/ws?session_id=nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
