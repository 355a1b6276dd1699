package storage

import (
	"context"
	"errors"
	"time"

	"github.com/schoolmsg/internal/model"
)

// ErrNotFound возвращается реализациями, когда тред или сообщение не существует.
var ErrNotFound = errors.New("not found")

// MessageStore — треды, участники, сообщения, метки и вложения.
// Реализации: memory.Store (разработка, в памяти процесса) и repository.Store (PostgreSQL).
// Выбирается один раз при старте в services/api.
type MessageStore interface {
	CreateThread(ctx context.Context, t *model.Thread) error
	GetThread(ctx context.Context, threadID string) (*model.Thread, error)
	// ListThreads возвращает треды пользователя, последняя активность — первой.
	ListThreads(ctx context.Context, userID string) ([]model.ThreadSummary, error)
	IsParticipant(ctx context.Context, threadID, userID string) (bool, error)
	// FindDirectThread ищет самый свежий тред, состоящий ровно из двух пользователей.
	FindDirectThread(ctx context.Context, userA, userB string) (string, error)
	TouchThread(ctx context.Context, threadID string, at time.Time) error

	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	// ThreadMessages — по возрастанию created_at.
	ThreadMessages(ctx context.Context, threadID string) ([]model.Message, error)
	// Inbox — сообщения, адресованные userID, новые первыми.
	Inbox(ctx context.Context, userID string) ([]model.Message, error)
	// MarkRead/MarkDelivered выставляют метку только если она пуста; changed=false — уже стояла.
	MarkRead(ctx context.Context, messageID string, at time.Time) (changed bool, err error)
	MarkDelivered(ctx context.Context, messageID string, at time.Time) (changed bool, err error)
	// Search ищет по subject и content без учёта регистра в тредах пользователя.
	Search(ctx context.Context, userID, query string, limit int) ([]model.Message, error)

	SetFlag(ctx context.Context, userID, messageID string, at time.Time) error
	DeleteFlag(ctx context.Context, userID, messageID string) error
	SetArchive(ctx context.Context, userID, threadID string, at time.Time) error
	DeleteArchive(ctx context.Context, userID, threadID string) error

	CreateAttachment(ctx context.Context, a *model.Attachment) error
	Audit(ctx context.Context, e *model.AuditEntry) error
}

// PresenceStore — записи присутствия, по одной на пользователя.
// Реализации: memory.Presence, repository.PresenceRepository, redis.Presence.
type PresenceStore interface {
	Upsert(ctx context.Context, rec *model.PresenceRecord) error
	// SetOffline возвращает found=false, если записи нет (это не ошибка).
	SetOffline(ctx context.Context, userID string, at time.Time) (found bool, err error)
	// ListActive — только онлайн, отсортировано по role, затем по user_id.
	ListActive(ctx context.Context, role, classID string) ([]model.PresenceRecord, error)
}
