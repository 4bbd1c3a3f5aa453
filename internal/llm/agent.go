package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"carechat/internal/apperr"
	"carechat/internal/config"
)

const maxEventLine = 1 << 20

// Agent talks to a Dify-style agent platform. Workflow runs stream SSE
// frames which are normalized into plain text deltas via the event decoder.
type Agent struct {
	cfg        config.AgentConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAgent(cfg config.AgentConfig, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// RunWorkflow starts a streaming workflow run and returns the delta stream.
func (a *Agent) RunWorkflow(ctx context.Context, inputs map[string]any) (*EventStream, error) {
	if a.cfg.Endpoint == "" || a.cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "agent platform is not configured")
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	return a.postStream(ctx, a.cfg.Endpoint+"/workflows/run", a.cfg.APIKey, map[string]any{
		"inputs":        inputs,
		"response_mode": "streaming",
		"user":          a.cfg.User,
	})
}

// ChatMessage starts a streaming chat-messages run against the data-record
// app. Each call opens a fresh conversation; the file attachment is the
// fixed payload the record app expects.
func (a *Agent) ChatMessage(ctx context.Context, query string) (*EventStream, error) {
	if a.cfg.RecordEndpoint == "" || a.cfg.RecordAPIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "data record agent is not configured")
	}
	return a.postStream(ctx, a.cfg.RecordEndpoint+"/chat-messages", a.cfg.RecordAPIKey, map[string]any{
		"inputs":          map[string]any{},
		"query":           query,
		"response_mode":   "streaming",
		"conversation_id": "",
		"user":            a.cfg.User,
		"files": []map[string]any{
			{
				"type":            "image",
				"transfer_method": "remote_url",
				"url":             "https://cloud.dify.ai/logo/logo-site.png",
			},
		},
	})
}

func (a *Agent) postStream(ctx context.Context, url, apiKey string, body map[string]any) (*EventStream, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode agent request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "call agent platform", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apperr.Upstream(resp.StatusCode, string(respBody))
	}
	return newEventStream(resp.Body, a.logger), nil
}

// WorkflowStatus fetches a run's status and passes the body through.
func (a *Agent) WorkflowStatus(ctx context.Context, workflowID string) (json.RawMessage, error) {
	if a.cfg.Endpoint == "" || a.cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "agent platform is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Endpoint+"/workflows/run/"+workflowID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "fetch workflow status", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "read workflow status", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream(resp.StatusCode, string(body))
	}
	return body, nil
}

// EventStream reads the upstream SSE body line by line and yields the text
// deltas the event decoder recognizes. Malformed or unknown frames are
// logged and skipped; a connection that drops mid-stream simply ends the
// sequence.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.Logger
	sawText bool
	done    bool
}

func newEventStream(body io.ReadCloser, logger *zap.Logger) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	return &EventStream{body: body, scanner: scanner, logger: logger}
}

func (s *EventStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		delta, finished, ok := decodeEvent([]byte(payload))
		if !ok {
			s.logger.Debug("skipping unrecognized agent event", zap.String("payload", payload))
			continue
		}
		if finished {
			s.done = true
			// the terminal fallback only applies when nothing streamed
			if delta == "" || s.sawText {
				return "", io.EOF
			}
			return delta, nil
		}
		if delta == "" {
			continue
		}
		s.sawText = true
		return delta, nil
	}
	if err := s.scanner.Err(); err != nil {
		s.logger.Warn("agent stream ended abnormally", zap.Error(err))
	}
	s.done = true
	return "", io.EOF
}

func (s *EventStream) Close() {
	s.body.Close()
}
