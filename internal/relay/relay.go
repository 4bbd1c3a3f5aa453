package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"carechat/internal/models"
)

// DeltaStream is the upstream side of the relay: a single-pass sequence of
// text fragments ending with io.EOF.
type DeltaStream interface {
	Recv() (string, error)
}

// Sink is the downstream side. Writes happen in delta order; a write error
// means the client is gone.
type Sink interface {
	Write(delta string) error
}

// MessageWriter persists the one assistant row written per completed stream.
type MessageWriter interface {
	CreateMessage(ctx context.Context, threadID string, role models.Role, content string) (*models.Message, error)
}

// Relay bridges an upstream delta sequence to a downstream sink, forwarding
// each fragment as it arrives while reassembling the full text for a single
// persistence write after the stream ends.
type Relay struct {
	store  MessageWriter
	logger *zap.Logger
}

func New(store MessageWriter, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{store: store, logger: logger}
}

// Pipe forwards deltas until the upstream ends, the request context is
// canceled, or the sink rejects a write. Every termination is treated as
// end-of-stream: the accumulated text so far is returned and never
// discarded, so callers can still persist a truncated run.
func (r *Relay) Pipe(ctx context.Context, stream DeltaStream, sink Sink) string {
	var full strings.Builder
	for {
		select {
		case <-ctx.Done():
			r.logger.Warn("request canceled mid-stream", zap.Error(ctx.Err()))
			return full.String()
		default:
		}
		delta, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("upstream stream ended early", zap.Error(err))
			}
			return full.String()
		}
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := sink.Write(delta); err != nil {
			r.logger.Warn("client disconnected mid-stream", zap.Error(err))
			return full.String()
		}
	}
}

// Run pipes the stream and then writes exactly one assistant row with the
// full text, even when no deltas ever arrived: a run that produced nothing
// is still recorded. The downstream bytes are already delivered by the time
// persistence happens, so a storage failure here is logged and swallowed;
// the returned message is nil in that case.
func (r *Relay) Run(ctx context.Context, threadID string, stream DeltaStream, sink Sink) *models.Message {
	full := r.Pipe(ctx, stream, sink)

	// the request context may already be canceled by a client disconnect
	msg, err := r.store.CreateMessage(context.WithoutCancel(ctx), threadID, models.RoleAssistant, full)
	if err != nil {
		r.logger.Error("persist assistant message failed",
			zap.String("thread_id", threadID), zap.Error(err))
		return nil
	}
	return msg
}

// SSEWriter frames deltas as Server-Sent-Events data chunks and flushes
// after every frame. The delta is JSON-encoded so fragments containing
// newlines cannot break the framing.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) Write(delta string) error {
	payload, err := json.Marshal(delta)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
