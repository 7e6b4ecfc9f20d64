package backend

import (
	"context"
	"log/slog"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// OpChatComplete generates the assistant's reply from normalized input.
const OpChatComplete = "chat.complete"

// ChatConfig configures the chat completion backend.
type ChatConfig struct {
	APIBase string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

// Chat is the completion backend the responder invokes with the enriched
// task's extracted text.
type Chat struct {
	api    *apiClient
	model  string
	logger *slog.Logger
}

func NewChat(cfg ChatConfig) *Chat {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Chat{
		api:    newAPIClient(cfg.APIBase, cfg.APIKey),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (c *Chat) Name() string { return "chat" }

func (c *Chat) Operations() []domain.Operation {
	return []domain.Operation{
		{
			Name:        OpChatComplete,
			Description: "Generate an assistant reply for the given input",
			Parameters: capability.Parameters(map[string]capability.Param{
				"prompt": {Type: "string", Description: "The normalized user input"},
				"system": {Type: "string", Description: "Optional system instruction"},
			}, []string{"prompt"}),
		},
	}
}

func (c *Chat) Invoke(ctx context.Context, op string, args map[string]any) domain.Result {
	if op != OpChatComplete {
		return domain.Fail("chat backend has no operation " + op)
	}

	prompt := capability.ArgString(args, "prompt")
	msgs := make([]chatMessage, 0, 2)
	if system := capability.ArgString(args, "system"); system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	text, err := c.api.complete(ctx, c.model, msgs)
	if err != nil {
		return domain.Fail(err.Error())
	}
	c.logger.Debug("chat completion", "prompt_len", len(prompt), "reply_len", len(text))
	return domain.Ok(text)
}
