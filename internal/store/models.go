package store

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Profile is the coaching profile of one user. Optional fields are nil
// when never set and are left out of JSON.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Sport     *string   `json:"sport,omitempty" db:"sport"`
	Goals     *string   `json:"goals,omitempty" db:"goals"`
	Level     *string   `json:"level,omitempty" db:"level"`
	Notes     *string   `json:"notes,omitempty" db:"notes"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProfileUpdate carries only the fields the caller supplied.
type ProfileUpdate struct {
	ID    string
	Sport *string
	Goals *string
	Level *string
	Notes *string
}

// Apply merges u onto p. Nil fields in u leave p untouched.
func (u ProfileUpdate) Apply(p *Profile) {
	p.ID = u.ID
	if u.Sport != nil {
		p.Sport = u.Sport
	}
	if u.Goals != nil {
		p.Goals = u.Goals
	}
	if u.Level != nil {
		p.Level = u.Level
	}
	if u.Notes != nil {
		p.Notes = u.Notes
	}
}

type Message struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      Role      `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	TurnID    *string   `json:"turn_id,omitempty" db:"turn_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Turn is one user message and the assistant reply to it. It is always
// written as a single unit.
type Turn struct {
	ID        string
	UserID    string
	User      Message
	Assistant Message
}

// NewTurn stamps both messages with the same turn id. The assistant
// message is dated strictly after the user message so ordering by
// created_at keeps the pair in sequence.
func NewTurn(userID, userContent, assistantContent string, now time.Time) *Turn {
	id := uuid.NewString()
	now = now.UTC()
	return &Turn{
		ID:     id,
		UserID: userID,
		User: Message{
			UserID:    userID,
			Role:      RoleUser,
			Content:   userContent,
			TurnID:    &id,
			CreatedAt: now,
		},
		Assistant: Message{
			UserID:    userID,
			Role:      RoleAssistant,
			Content:   assistantContent,
			TurnID:    &id,
			CreatedAt: now.Add(time.Microsecond),
		},
	}
}
