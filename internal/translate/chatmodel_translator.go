package translate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"pdf-translator/internal/logger"
)

// ChatModelTranslator translates through an eino chat model.
type ChatModelTranslator struct {
	model model.BaseChatModel
}

// NewChatModelTranslator wraps an existing chat model.
func NewChatModelTranslator(m model.BaseChatModel) *ChatModelTranslator {
	return &ChatModelTranslator{model: m}
}

// NewOpenAIChatModelTranslator creates an eino OpenAI chat model for the
// given endpoint.
func NewOpenAIChatModelTranslator(ctx context.Context, apiKey, baseURL, modelName string, timeout time.Duration) (*ChatModelTranslator, error) {
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	cfg := &openai.ChatModelConfig{
		Model:   modelName,
		APIKey:  apiKey,
		Timeout: timeout,
	}
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/chat/completions")
	}
	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, NewPermanent(CodeBadRequest, "failed to create chat model", err)
	}
	return NewChatModelTranslator(cm), nil
}

// Translate generates the translation as a single assistant message.
func (t *ChatModelTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt(source, target)),
		schema.UserMessage(text),
	}
	out, err := t.model.Generate(ctx, msgs)
	if err != nil {
		logger.Debug("chat model call failed", logger.Err(err))
		return "", classifyModelError(ctx, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", NewTransient(CodeEmptyResponse, "chat model returned no translation", nil)
	}
	return strings.TrimSpace(out.Content), nil
}

// classifyModelError maps the client library's error text onto a classified
// error; the status code is only available in the message.
func classifyModelError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient_quota"):
		return NewPermanent(CodeQuotaExhausted, "API quota exhausted", err)
	case strings.Contains(msg, "status code: 401"), strings.Contains(msg, "status code: 403"),
		strings.Contains(msg, "invalid_api_key"):
		return NewPermanent(CodeAuth, "API authentication failed", err)
	case strings.Contains(msg, "status code: 429"):
		return NewTransient(CodeRateLimited, "API rate limit exceeded", err)
	case strings.Contains(msg, "status code: 5"):
		return NewTransient(CodeServer, "API server error", err)
	case strings.Contains(msg, "status code: 400"):
		return NewPermanent(CodeBadRequest, "invalid API request", err)
	}
	if Classify(err) == Transient {
		return NewTransient(CodeNetwork, "chat model call failed", err)
	}
	return NewPermanent(CodeBadRequest, "chat model call failed", err)
}

var _ Translator = (*ChatModelTranslator)(nil)
