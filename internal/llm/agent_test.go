package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carechat/internal/apperr"
	"carechat/internal/config"
)

func drainStream(t *testing.T, stream *EventStream) []string {
	t.Helper()
	defer stream.Close()
	var deltas []string
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			return deltas
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		deltas = append(deltas, delta)
	}
}

func newAgentServer(t *testing.T, frames []string, wantBody map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows/run" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		if wantBody != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if body["response_mode"] != "streaming" {
				t.Errorf("expected streaming response_mode, got %v", body["response_mode"])
			}
			if body["user"] != wantBody["user"] {
				t.Errorf("user mismatch: %v", body["user"])
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
	}))
}

func testAgent(endpoint string) *Agent {
	return NewAgent(config.AgentConfig{
		Endpoint: endpoint,
		APIKey:   "test-key",
		User:     "tester",
	}, nil)
}

func TestRunWorkflowStreamsDeltas(t *testing.T) {
	srv := newAgentServer(t, []string{
		`{"event":"text_chunk","data":{"text":"Hel"}}`,
		`{"event":"node_started","data":{}}`,
		`{"event":"text_chunk","data":{"text":"lo"}}`,
		`{"event":"workflow_finished","data":{"response":"Hello"}}`,
	}, map[string]any{"user": "tester"})
	defer srv.Close()

	stream, err := testAgent(srv.URL).RunWorkflow(context.Background(), map[string]any{"query": "hi"})
	if err != nil {
		t.Fatalf("run workflow: %v", err)
	}
	deltas := drainStream(t, stream)
	// the terminal frame repeats the full text and must not be emitted again
	if strings.Join(deltas, "") != "Hello" {
		t.Fatalf("unexpected deltas: %#v", deltas)
	}
}

func TestRunWorkflowTerminalFallback(t *testing.T) {
	srv := newAgentServer(t, []string{
		`{"event":"node_started","data":{}}`,
		`{"event":"workflow_finished","data":{"response":"only the summary"}}`,
	}, nil)
	defer srv.Close()

	stream, err := testAgent(srv.URL).RunWorkflow(context.Background(), nil)
	if err != nil {
		t.Fatalf("run workflow: %v", err)
	}
	deltas := drainStream(t, stream)
	if len(deltas) != 1 || deltas[0] != "only the summary" {
		t.Fatalf("expected the terminal summary when nothing streamed, got %#v", deltas)
	}
}

func TestRunWorkflowSkipsMalformedFrames(t *testing.T) {
	srv := newAgentServer(t, []string{
		`{broken`,
		`{"event":"message","answer":"ok"}`,
		``,
	}, nil)
	defer srv.Close()

	stream, err := testAgent(srv.URL).RunWorkflow(context.Background(), nil)
	if err != nil {
		t.Fatalf("run workflow: %v", err)
	}
	deltas := drainStream(t, stream)
	if len(deltas) != 1 || deltas[0] != "ok" {
		t.Fatalf("expected malformed frames skipped, got %#v", deltas)
	}
}

func TestChatMessageStreamsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-messages" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer record-key" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		var body struct {
			Query          string           `json:"query"`
			ResponseMode   string           `json:"response_mode"`
			ConversationID string           `json:"conversation_id"`
			User           string           `json:"user"`
			Files          []map[string]any `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Query != "record this" || body.ResponseMode != "streaming" {
			t.Errorf("unexpected payload: %+v", body)
		}
		if body.ConversationID != "" {
			t.Errorf("expected a fresh conversation, got %q", body.ConversationID)
		}
		if body.User != "tester" || len(body.Files) != 1 {
			t.Errorf("unexpected user/files: %+v", body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"recorded\"}\n\n")
	}))
	defer srv.Close()

	agent := NewAgent(config.AgentConfig{
		RecordEndpoint: srv.URL,
		RecordAPIKey:   "record-key",
		User:           "tester",
	}, nil)
	stream, err := agent.ChatMessage(context.Background(), "record this")
	if err != nil {
		t.Fatalf("chat message: %v", err)
	}
	deltas := drainStream(t, stream)
	if len(deltas) != 1 || deltas[0] != "recorded" {
		t.Fatalf("unexpected deltas: %#v", deltas)
	}
}

func TestChatMessageUnconfigured(t *testing.T) {
	// the workflow app being configured is not enough for data records
	agent := NewAgent(config.AgentConfig{Endpoint: "http://example.com", APIKey: "k"}, nil)
	_, err := agent.ChatMessage(context.Background(), "x")
	if apperr.KindOf(err) != apperr.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunWorkflowUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testAgent(srv.URL).RunWorkflow(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected upstream error")
	}
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected upstream kind, got %v", err)
	}
	if apperr.HTTPStatus(err) != http.StatusTooManyRequests {
		t.Fatalf("expected mirrored status 429, got %d", apperr.HTTPStatus(err))
	}
}

func TestRunWorkflowUnconfigured(t *testing.T) {
	agent := NewAgent(config.AgentConfig{}, nil)
	_, err := agent.RunWorkflow(context.Background(), nil)
	if apperr.KindOf(err) != apperr.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestWorkflowStatusPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows/run/wf-123" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"wf-123","status":"succeeded"}`)
	}))
	defer srv.Close()

	raw, err := testAgent(srv.URL).WorkflowStatus(context.Background(), "wf-123")
	if err != nil {
		t.Fatalf("workflow status: %v", err)
	}
	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode passthrough body: %v", err)
	}
	if body.ID != "wf-123" || body.Status != "succeeded" {
		t.Fatalf("unexpected status body: %+v", body)
	}
}

func TestWorkflowStatusUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testAgent(srv.URL).WorkflowStatus(context.Background(), "missing")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected upstream kind, got %v", err)
	}
	if apperr.HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected mirrored 404, got %d", apperr.HTTPStatus(err))
	}
}
