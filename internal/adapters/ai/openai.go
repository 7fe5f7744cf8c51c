package ai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/pkg/logger"
)

// OpenAIReasoner drives sessions over any OpenAI-compatible chat
// completions endpoint with tool calling
type OpenAIReasoner struct {
	client *openai.Client
	cfg    config.ReasonerConfig
}

// NewOpenAIReasoner creates a reasoner from config
func NewOpenAIReasoner(cfg config.ReasonerConfig) *OpenAIReasoner {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIReasoner{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
}

// StartSession opens one tool-calling conversation
func (r *OpenAIReasoner) StartSession(ctx context.Context, req Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = r.cfg.DefaultModel
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, tool := range req.Tools {
		schema, err := json.Marshal(tool.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for tool %s: %w", tool.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(schema),
			},
		})
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.Instructions},
	}
	if req.UserMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserMessage,
		})
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = float32(r.cfg.Temperature)
	}

	return &openaiStream{
		client:      r.client,
		model:       model,
		temperature: temperature,
		tools:       tools,
		messages:    messages,
	}, nil
}

// openaiStream holds one conversation. Tool calls returned by the model
// are queued and handed out one Recv at a time; every queued call must be
// answered via Reply before the next completion request is issued.
type openaiStream struct {
	client      *openai.Client
	model       string
	temperature float32
	tools       []openai.Tool
	messages    []openai.ChatCompletionMessage
	queue       []ToolCall
	done        bool
}

func (s *openaiStream) Recv(ctx context.Context) (*Event, error) {
	if s.done {
		return nil, fmt.Errorf("stream is closed")
	}

	if len(s.queue) > 0 {
		call := s.queue[0]
		s.queue = s.queue[1:]
		return &Event{Kind: EventToolCall, Call: &call}, nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    s.messages,
		Tools:       s.tools,
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0].Message
	s.messages = append(s.messages, choice)

	if len(choice.ToolCalls) > 0 {
		for _, tc := range choice.ToolCalls {
			params := map[string]any{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
					logger.Warn("failed to parse tool call arguments",
						zap.String("tool", tc.Function.Name),
						zap.Error(err),
					)
				}
			}
			s.queue = append(s.queue, ToolCall{
				ID:     tc.ID,
				Name:   tc.Function.Name,
				Params: params,
			})
		}
		call := s.queue[0]
		s.queue = s.queue[1:]
		return &Event{Kind: EventToolCall, Call: &call}, nil
	}

	s.done = true
	return &Event{Kind: EventFinal, Final: choice.Content}, nil
}

func (s *openaiStream) Reply(ctx context.Context, callID string, result any) error {
	content, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal tool result: %w", err)
	}
	s.messages = append(s.messages, openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: callID,
		Content:    string(content),
	})
	return nil
}

func (s *openaiStream) Close() error {
	s.done = true
	return nil
}
