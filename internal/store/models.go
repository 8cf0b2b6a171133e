package store

import "time"

type User struct {
	ID        string    `json:"userId"`
	FullName  string    `json:"fullName"`
	Age       *int      `json:"age,omitempty"`
	Gender    string    `json:"gender"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Bot is the companion a user configured. There is at most one per user.
type Bot struct {
	UserID      string    `json:"userId"`
	BotName     string    `json:"botName"`
	Personality string    `json:"personality"`
	Role        string    `json:"role"`
	Tone        string    `json:"tone"`
	UpdatedAt   time.Time `json:"-"`
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// MemoryMessage is one turn of a user's conversation memory.
type MemoryMessage struct {
	ID        int64     `json:"-"`
	UserID    string    `json:"-"`
	Role      string    `json:"role"` // "user" or "model"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
