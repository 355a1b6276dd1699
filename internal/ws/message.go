package ws

import "github.com/schoolmsg/internal/service"

// Входящие события от клиента.
const (
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventMessageAck      = "message:ack"
	EventPresenceOnline  = "presence:online"
	EventPresenceOffline = "presence:offline"
)

// IncomingMessage is what the client sends to the server.
// Личность берётся из токена соединения, а не из тела события.
type IncomingMessage struct {
	Type      string `json:"type"`
	ThreadID  string `json:"threadId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	ClassID   string `json:"classId,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage = service.Event

func errorMessage(text string) OutgoingMessage {
	return OutgoingMessage{Type: service.EventError, Payload: text}
}
