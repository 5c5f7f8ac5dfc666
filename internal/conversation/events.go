package conversation

import (
	"context"
	"time"

	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
)

// EventType labels driver events pushed to clients.
type EventType string

const (
	EventMessage   EventType = "message"
	EventState     EventType = "state"
	EventScheduled EventType = "scheduled"
	EventNotice    EventType = "notice"
	EventEnded     EventType = "ended"
)

// Event is emitted by the driver after each applied command.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"sessionId"`
	Message   *chat.Message `json:"message,omitempty"`
	State     *State        `json:"state,omitempty"`
	Schedule  *ScheduleInfo `json:"schedule,omitempty"`
	Notice    string        `json:"notice,omitempty"`
	At        time.Time     `json:"at"`
}

// ScheduleInfo describes a pending agent reply for the UI countdown.
type ScheduleInfo struct {
	TurnIndex  int    `json:"turnIndex"`
	AgentID    string `json:"agentId"`
	AgentName  string `json:"agentName"`
	DelayMs    int64  `json:"delayMs"`
	BandMinMs  int64  `json:"bandMinMs"`
	BandMaxMs  int64  `json:"bandMaxMs"`
	Difficulty string `json:"difficulty"`
}

// EventSink receives driver events. Publish is called from the driver goroutine and must not block.
type EventSink interface {
	Publish(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Publish implements EventSink.
func (f SinkFunc) Publish(e Event) { f(e) }

type discardSink struct{}

func (discardSink) Publish(Event) {}

// Responder produces agent reply text. It is the text-generation collaborator: an LLM chain or a
// local heuristic.
type Responder interface {
	Respond(ctx context.Context, req chat.Request) (chat.Response, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req chat.Request) (chat.Response, error)

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, req chat.Request) (chat.Response, error) {
	return f(ctx, req)
}

// ToneAdvisor reads how the user sounds and returns guidance for the reply's system prompt, or
// an empty string when no adjustment is needed.
type ToneAdvisor interface {
	Advise(ctx context.Context, history []chat.Turn, userInput string) string
}

// Speaker plays agent messages aloud.
type Speaker interface {
	Speak(msg chat.Message, voiceHandle string) bool
	CancelAll()
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(chat.Message, string) bool { return false }
func (silentSpeaker) CancelAll() {}
