// Package chat owns the message log of a conversation with the companion and
// drives one streamed reply at a time.
package chat

import (
	"fmt"
	"time"

	"vibemate.dev/vibemate/internal/profile"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// StreamingID marks the assistant message that is still being streamed. It is
// never assigned to a finished message.
const StreamingID = "stream"

// ErrorText replaces a reply whose stream failed.
const ErrorText = "❌ Something went wrong. Please try again."

type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	FileName  string    `json:"fileName,omitempty"`
}

// Streaming reports whether m is the in-flight reply.
func (m Message) Streaming() bool {
	return m.ID == StreamingID
}

// WelcomeText is the companion's first message of a session.
func WelcomeText(p profile.UserProfile, persona profile.PersonaConfig) string {
	return fmt.Sprintf("Hey %s! I'm %s, your %s. I'm here to chat, help, and be your friend. What's on your mind today? 😊",
		p.FullName, persona.BotName, persona.Role)
}
