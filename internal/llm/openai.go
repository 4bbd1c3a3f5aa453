package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"carechat/internal/apperr"
	"carechat/internal/config"
	"carechat/internal/models"
)

// Client is the upstream chat-completion surface the handlers consume.
type Client interface {
	// Complete issues a single non-streaming completion for the history.
	Complete(ctx context.Context, history []*models.Message) (*models.Message, error)
	// Stream opens a streaming completion. The returned stream is single
	// pass and must be closed by the caller.
	Stream(ctx context.Context, history []*models.Message) (DeltaStream, error)
}

// DeltaStream yields text fragments in upstream order. Recv returns io.EOF
// once the upstream signals end-of-stream; a dropped connection also ends
// the stream without a distinct error (silent truncation).
type DeltaStream interface {
	Recv() (string, error)
	Close()
}

// OpenAI talks to an OpenAI-compatible chat-completion endpoint.
type OpenAI struct {
	chatModel model.BaseChatModel
}

// NewOpenAI builds the client. The API key is checked here, before any
// network call is attempted.
func NewOpenAI(ctx context.Context, cfg config.OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "OpenAI API key is not configured")
	}
	temperature := cfg.Temperature
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "init chat model", err)
	}
	return &OpenAI{chatModel: chatModel}, nil
}

func (o *OpenAI) Complete(ctx context.Context, history []*models.Message) (*models.Message, error) {
	resp, err := o.chatModel.Generate(ctx, toSchema(history))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "chat completion failed", err)
	}
	return &models.Message{
		Role:      models.RoleAssistant,
		Content:   resp.Content,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (o *OpenAI) Stream(ctx context.Context, history []*models.Message) (DeltaStream, error) {
	reader, err := o.chatModel.Stream(ctx, toSchema(history))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "open chat stream failed", err)
	}
	return &chatStream{reader: reader}, nil
}

type chatStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *chatStream) Recv() (string, error) {
	chunk, err := s.reader.Recv()
	if err != nil {
		return "", err
	}
	return chunk.Content, nil
}

func (s *chatStream) Close() {
	s.reader.Close()
}

func toSchema(history []*models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		if msg == nil {
			continue
		}
		var role schema.RoleType
		switch msg.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}
