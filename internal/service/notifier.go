package service

import (
	"time"

	"github.com/schoolmsg/internal/model"
)

type EventType string

const (
	EventMessage        EventType = "message"
	EventMessageStatus  EventType = "message:status"
	EventTyping         EventType = "typing"
	EventPresenceUpdate EventType = "presence:update"
	EventError          EventType = "error"
)

// Event — то, что уходит клиенту по сокету.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type MessagePayload struct {
	ThreadID string        `json:"threadId"`
	Message  model.Message `json:"message"`
}

type MessageStatusPayload struct {
	MessageID string `json:"messageId"`
	Read      bool   `json:"read,omitempty"`
	Delivered bool   `json:"delivered,omitempty"`
}

type TypingPayload struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId"`
	Typing   bool   `json:"typing"`
}

type PresenceUpdatePayload struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role,omitempty"`
	ClassID  *string   `json:"classId,omitempty"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// Notifier доставляет события подключённым клиентам по принципу best-effort:
// ошибок нет, неподключённому пользователю событие просто не доходит.
type Notifier interface {
	// ToUser — в личный канал user-<id>, во все его соединения.
	ToUser(userID string, ev Event)
	Broadcast(ev Event)
}

// NopNotifier ничего не делает. Используется, когда realtime не подключён.
type NopNotifier struct{}

func (NopNotifier) ToUser(string, Event) {}

func (NopNotifier) Broadcast(Event) {}
