package reasoning

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// systemPrompt frames every call: answers are read by heuristics, not by a parser.
const systemPrompt = `You are a senior software engineer assisting a competitive code-generation arena.
Answer in plain text. Use numbered lists for steps and bullet lists for recommendations.
Always refer to workers by their exact ids (for example worker-1).`

// EinoConfig configures an OpenAI-compatible backend.
type EinoConfig struct {
	BaseURL   string
	APIKey    string
	MaxTokens int
	Resolver  ModelResolver
}

// EinoService calls an OpenAI-compatible chat endpoint through eino.
type EinoService struct {
	cfg    EinoConfig
	mu     sync.Mutex
	models map[string]model.ChatModel
}

// NewEinoService creates the service. Chat models are created lazily per model name.
func NewEinoService(cfg EinoConfig) *EinoService {
	return &EinoService{cfg: cfg, models: make(map[string]model.ChatModel)}
}

func (s *EinoService) chatModel(ctx context.Context, name string) (model.ChatModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.models[name]; ok {
		return m, nil
	}
	chatConfig := &openai.ChatModelConfig{
		Model:   name,
		APIKey:  s.cfg.APIKey,
		BaseURL: s.cfg.BaseURL,
	}
	if s.cfg.MaxTokens > 0 {
		maxTokens := s.cfg.MaxTokens
		chatConfig.MaxTokens = &maxTokens
	}
	m, err := openai.NewChatModel(ctx, chatConfig)
	if err != nil {
		return nil, fmt.Errorf("create chat model %s: %w", name, err)
	}
	s.models[name] = m
	return m, nil
}

// Reason implements Service.
func (s *EinoService) Reason(ctx context.Context, prompt, capability string) (string, error) {
	name := s.cfg.Resolver.Resolve(capability)
	m, err := s.chatModel(ctx, name)
	if err != nil {
		return "", err
	}

	resp, err := m.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", name, err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}
