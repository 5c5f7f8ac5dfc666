package tone

import (
	"context"
	"encoding/json"
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

const defaultHistoryLimit = 6

// Guidance is the tone the next reply should take, with a one-line style hint for the prompt.
type Guidance struct {
	Decision   Decision `json:"decision"`
	Style      string   `json:"style"`
	Confidence float32  `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
}

// Classifier reads the user's latest message through a chat model. Without a usable model answer
// it falls back to keyword scoring.
type Classifier struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
}

// NewClassifier compiles the classification chain. A nil chatModel yields a keyword-only
// classifier.
func NewClassifier(ctx context.Context, chatModel model.BaseChatModel) (*Classifier, error) {
	c := &Classifier{historyLimit: defaultHistoryLimit}
	if chatModel == nil {
		return c, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile tone classifier chain: %w", err)
	}
	c.chain = runnable
	return c, nil
}

// Enabled reports whether the model-backed chain is available.
func (c *Classifier) Enabled() bool {
	return c != nil && c.chain != nil
}

// Classify picks the reply tone for userInput given the turns before it.
func (c *Classifier) Classify(ctx context.Context, history []chat.Turn, userInput string) Guidance {
	userInput = strings.TrimSpace(userInput)
	if !c.Enabled() || userInput == "" {
		return fallbackGuidance(userInput)
	}

	msg, err := c.chain.Invoke(ctx, map[string]any{
		"history":      formatHistory(history, c.historyLimit),
		"user_message": userInput,
	})
	if err != nil {
		log.Warn().Str("component", "tone").Err(err).Msg("classifier invoke failed, using keywords")
		return fallbackGuidance(userInput)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return fallbackGuidance(userInput)
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Warn().Str("component", "tone").Err(err).Msg("classifier output unparseable, using keywords")
		return fallbackGuidance(userInput)
	}
	label, ok := parseLabel(payload.Tone)
	if !ok {
		return fallbackGuidance(userInput)
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}
	style := strings.TrimSpace(payload.Style)
	if style == "" {
		style = defaultStyle[label]
	}

	return Guidance{
		Decision:   decision(label, int(confidence*10)),
		Style:      style,
		Confidence: confidence,
		Reason:     strings.TrimSpace(payload.Reason),
	}
}

// Advise renders Classify's result as a system prompt addendum. Neutral guidance renders empty.
func (c *Classifier) Advise(ctx context.Context, history []chat.Turn, userInput string) string {
	return c.Classify(ctx, history, userInput).Prompt()
}

// Prompt formats the guidance for a reply's system prompt.
func (g Guidance) Prompt() string {
	if g.Decision.Tone == "" || g.Decision.Tone == Neutral {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Suggested tone: %s.", g.Decision.Tone)
	if g.Style != "" {
		b.WriteString(" ")
		b.WriteString(g.Style)
	}
	if g.Reason != "" && g.Reason != "keywords" {
		fmt.Fprintf(&b, " (%s)", g.Reason)
	}
	return b.String()
}

func fallbackGuidance(userInput string) Guidance {
	d := Analyze(userInput, "")
	confidence := float32(0.3)
	if d.Score > 0 {
		confidence = 0.55
	}
	return Guidance{
		Decision:   d,
		Style:      defaultStyle[d.Tone],
		Confidence: confidence,
		Reason:     "keywords",
	}
}

type classifierPayload struct {
	Tone       string  `json:"tone"`
	Confidence float32 `json:"confidence"`
	Style      string  `json:"style"`
	Reason     string  `json:"reason"`
}

func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return nil, errors.New("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseLabel(raw string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case Neutral:
		return Neutral, true
	case Warm:
		return Warm, true
	case Encouraging:
		return Encouraging, true
	case Curious:
		return Curious, true
	case Firm:
		return Firm, true
	default:
		return "", false
	}
}

func formatHistory(turns []chat.Turn, limit int) string {
	start := len(turns) - limit
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, turn := range turns[start:] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := "Partner"
		if turn.Role == chat.RoleUser {
			role = "User"
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
	}
	if b.Len() == 0 {
		return "(no earlier turns)"
	}
	return b.String()
}

const classifierSystemPrompt = "You coach a conversation-practice partner. Judge how the user feels from the recent turns " +
	"and pick the tone the partner's next reply should take.\n" +
	"Answer with one JSON object only: tone (one of neutral, warm, encouraging, curious, firm), " +
	"confidence (0 to 1), style (one sentence on how to phrase the reply), reason (a few words)."

const classifierUserPrompt = "Recent turns:\n{history}\n\nLatest user message:\n{user_message}"

var defaultStyle = map[Label]string{
	Neutral:     "Keep a calm, patient voice and make the question clear.",
	Warm:        "Sound friendly and appreciative before moving on.",
	Encouraging: "Reassure the user and let them continue at their own pace.",
	Curious:     "Show interest and ask for one concrete detail.",
	Firm:        "Stay polite but steer the user back to a specific, focused answer.",
}
