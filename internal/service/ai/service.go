package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
)

// ErrEmptyInput is returned when a request carries no user input.
var ErrEmptyInput = errors.New("userInput is required")

const defaultSystemPrompt = "You are a friendly conversation partner helping the user practice speaking. " +
	"Keep replies short and natural, and ask one follow-up question at a time."

// Config tunes how requests are shaped before reaching the model.
type Config struct {
	// HistoryLimit caps the number of prior turns sent to the model. Zero keeps the default.
	HistoryLimit int
	// SystemPrompt is used when a request has no custom system prompt.
	SystemPrompt string
}

// Service answers conversational requests through an eino chain over a chat model.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	systemPrompt string
}

// NewService compiles the prompt template and chat model into a chain.
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 20
	}
	systemPrompt := strings.TrimSpace(cfg.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &Service{
		chain:        runnable,
		historyLimit: historyLimit,
		systemPrompt: systemPrompt,
	}, nil
}

// Respond generates the next model turn and returns the history with both new turns appended.
func (s *Service) Respond(ctx context.Context, req chat.Request) (chat.Response, error) {
	query := strings.TrimSpace(req.UserInput)
	if query == "" {
		return chat.Response{}, ErrEmptyInput
	}

	response, err := s.chain.Invoke(ctx, s.buildChainInput(req, query))
	if err != nil {
		return chat.Response{}, fmt.Errorf("failed to run AI chain: %w", err)
	}
	text := strings.TrimSpace(response.Content)

	log.Debug().Str("component", "ai").Int("history", len(req.ConversationHistory)).Int("length", len(text)).Msg("generated response")
	return chat.Response{
		Response:            text,
		ConversationHistory: appendTurns(req.ConversationHistory, query, text),
	}, nil
}

func (s *Service) buildChainInput(req chat.Request, query string) map[string]any {
	system := strings.TrimSpace(req.CustomSystemPrompt)
	if system == "" {
		system = s.systemPrompt
	}
	return map[string]any{
		"system":  system,
		"history": s.buildHistoryMessages(req.ConversationHistory),
		"query":   query,
	}
}

func (s *Service) buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > s.historyLimit {
		startIdx = len(turns) - s.historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleModel:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

func appendTurns(history []chat.Turn, userInput, reply string) []chat.Turn {
	out := make([]chat.Turn, 0, len(history)+2)
	out = append(out, history...)
	return append(out,
		chat.Turn{Role: chat.RoleUser, Content: userInput},
		chat.Turn{Role: chat.RoleModel, Content: reply},
	)
}
