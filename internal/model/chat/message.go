package chat

import "time"

// UserSpeaker marks messages authored by the practising user.
const UserSpeaker = "user"

// Message is one turn in a practice transcript. Messages are append-only.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	SpeakerID   string    `json:"speakerId"`
	SpeakerName string    `json:"speakerName,omitempty"`
	Content     string    `json:"content"`
	IsError     bool      `json:"isError,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FromUser reports whether the message was sent by the user.
func (m Message) FromUser() bool {
	return m.SpeakerID == UserSpeaker
}
