package ai

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
)

var acknowledgements = []string{
	"Thanks, that's helpful.",
	"Okay, I see.",
	"Got it.",
	"That's interesting.",
	"Understood.",
}

const (
	expandShortAnswer = "Could you expand on that a little, with a specific example?"
	closingQuestion   = "Thanks, that covers what I wanted to ask. Is there anything you'd like to ask us?"
)

// HeuristicResponder replies offline from a fixed question bank. It asks each question once, in
// order, and asks for more detail when an answer is very short.
type HeuristicResponder struct {
	questions []string
}

// NewHeuristicResponder copies questions so later edits by the caller have no effect.
func NewHeuristicResponder(questions []string) *HeuristicResponder {
	bank := make([]string, 0, len(questions))
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			bank = append(bank, q)
		}
	}
	return &HeuristicResponder{questions: bank}
}

// Respond implements the conversational endpoint without a model.
func (h *HeuristicResponder) Respond(ctx context.Context, req chat.Request) (chat.Response, error) {
	if err := ctx.Err(); err != nil {
		return chat.Response{}, err
	}
	query := strings.TrimSpace(req.UserInput)
	if query == "" {
		return chat.Response{}, ErrEmptyInput
	}

	reply := h.nextReply(query, req.ConversationHistory)
	return chat.Response{
		Response:            reply,
		ConversationHistory: appendTurns(req.ConversationHistory, query, reply),
	}, nil
}

func (h *HeuristicResponder) nextReply(query string, history []chat.Turn) string {
	if len(strings.Fields(query)) < 4 {
		return expandShortAnswer
	}

	ack := acknowledgements[pick(query, len(acknowledgements))]
	for _, q := range h.questions {
		if !alreadyAsked(q, history) {
			return ack + " " + q
		}
	}
	return ack + " " + closingQuestion
}

func alreadyAsked(question string, history []chat.Turn) bool {
	for _, turn := range history {
		if turn.Role == chat.RoleModel && strings.Contains(turn.Content, question) {
			return true
		}
	}
	return false
}

func pick(s string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(n))
}
