package model

import "time"

// Message — одна парная запись: отправитель и ровно один получатель.
// Отправка в групповой тред создаёт по Message на каждого другого участника.
type Message struct {
	ID          string     `json:"id"`
	ThreadID    string     `json:"thread_id"`
	FromUserID  string     `json:"from_user_id"`
	FromRole    string     `json:"from_role"`
	ToUserID    string     `json:"to_user_id"`
	ToRole      string     `json:"to_role"`
	Subject     *string    `json:"subject"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
}

// Attachment хранит метаданные файла; сами байты лежат по Path.
type Attachment struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	Filename   string    `json:"filename"`
	Mime       string    `json:"mime"`
	SizeBytes  int64     `json:"size"`
	Path       string    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AttachmentInfo — то, что возвращается клиенту после attach.
type AttachmentInfo struct {
	Filename string `json:"filename"`
	Mime     string `json:"mime"`
	Size     int64  `json:"size"`
}

type MessageFlag struct {
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id"`
	FlaggedAt time.Time `json:"flagged_at"`
}

type ThreadArchive struct {
	UserID     string    `json:"user_id"`
	ThreadID   string    `json:"thread_id"`
	ArchivedAt time.Time `json:"archived_at"`
}

const (
	AuditActionSend         = "send"
	AuditActionThreadCreate = "thread:create"
)

type AuditEntry struct {
	ID          string         `json:"id"`
	ActorUserID string         `json:"actor_user_id"`
	Action      string         `json:"action"`
	MessageID   string         `json:"message_id,omitempty"`
	ThreadID    string         `json:"thread_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
