package chat

import (
	"encoding/json"
	"time"
)

// MaxCacheSize is the number of recent messages kept per room for backfill.
const MaxCacheSize = 50

// Message is a chat message as published to a room.
// RecordID is zero until the message has been durably stored.
type Message struct {
	RecordID  int64     `json:"id,omitempty"`
	RoomID    string    `json:"room_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Stored reports whether the persistence layer assigned a record id.
func (m Message) Stored() bool { return m.RecordID != 0 }

type EventType string

const (
	EventBackfill EventType = "cached_messages"
	EventLive     EventType = "chat_message"
)

// Event is what a member's transport receives.
type Event struct {
	Type     EventType `json:"type"`
	Messages []Message `json:"messages,omitempty"`
	Message  *Message  `json:"message,omitempty"`
}

// MarshalJSON writes a backfill as {"type","messages"} (always a list) and a
// live event as {"type","message"}.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventBackfill {
		msgs := e.Messages
		if msgs == nil {
			msgs = []Message{}
		}
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			Messages []Message `json:"messages"`
		}{e.Type, msgs})
	}
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Message *Message  `json:"message"`
	}{e.Type, e.Message})
}

// BackfillEvent carries the recent history handed to a newly joined member.
func BackfillEvent(msgs []Message) Event {
	if msgs == nil {
		msgs = []Message{}
	}
	return Event{Type: EventBackfill, Messages: msgs}
}

// LiveMessageEvent carries one freshly published message.
func LiveMessageEvent(m Message) Event {
	return Event{Type: EventLive, Message: &m}
}
