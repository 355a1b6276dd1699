package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/model"
)

const messageColumns = `m.id, m.thread_id, m.from_user_id, m.from_role, m.to_user_id, m.to_role,
		        m.subject, m.content, m.created_at, m.delivered_at, m.read_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(row pgx.Row, m *model.Message) error {
	return row.Scan(&m.ID, &m.ThreadID, &m.FromUserID, &m.FromRole, &m.ToUserID, &m.ToRole,
		&m.Subject, &m.Content, &m.CreatedAt, &m.DeliveredAt, &m.ReadAt)
}

func (r *MessageRepository) CreateMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, thread_id, from_user_id, from_role, to_user_id, to_role, subject, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ThreadID, m.FromUserID, m.FromRole, m.ToUserID, m.ToRole, m.Subject, m.Content, m.CreatedAt,
	)
	if isMissingRef(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Get", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, messageID,
	), m)
	if errors.Is(err, pgx.ErrNoRows) || isMissingRef(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Get: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) list(ctx context.Context, op, query string, args ...any) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.%s query: %w", op, err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.%s scan: %w", op, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.%s rows: %w", op, err)
	}
	return messages, nil
}

func (r *MessageRepository) ThreadMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ThreadMessages", time.Now())()
	return r.list(ctx, "ThreadMessages",
		`SELECT `+messageColumns+` FROM messages m WHERE m.thread_id = $1 ORDER BY m.created_at ASC`, threadID)
}

func (r *MessageRepository) Inbox(ctx context.Context, userID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Inbox", time.Now())()
	return r.list(ctx, "Inbox",
		`SELECT `+messageColumns+` FROM messages m WHERE m.to_user_id = $1 ORDER BY m.created_at DESC, m.id`, userID)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *MessageRepository) Search(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Search", time.Now())()
	return r.list(ctx, "Search",
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN message_participants p ON p.thread_id = m.thread_id AND p.user_id = $1
		 WHERE m.subject ILIKE $2 OR m.content ILIKE $2
		 ORDER BY m.created_at DESC, m.id
		 LIMIT $3`,
		userID, "%"+likeEscaper.Replace(query)+"%", limit)
}

// setOnce выставляет временную метку, только если она ещё пуста.
func (r *MessageRepository) setOnce(ctx context.Context, op, column, messageID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET `+column+` = $1 WHERE id = $2 AND `+column+` IS NULL`, at, messageID,
	)
	if isMissingRef(err) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("msgRepo.%s: %w", op, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("msgRepo.%s exists: %w", op, err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, messageID string, at time.Time) (bool, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	return r.setOnce(ctx, "MarkRead", "read_at", messageID, at)
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID string, at time.Time) (bool, error) {
	defer logger.DeferLogDuration("msg.MarkDelivered", time.Now())()
	return r.setOnce(ctx, "MarkDelivered", "delivered_at", messageID, at)
}

func (r *MessageRepository) SetFlag(ctx context.Context, userID, messageID string, at time.Time) error {
	defer logger.DeferLogDuration("msg.SetFlag", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_flags (user_id, message_id, flagged_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, message_id) DO UPDATE SET flagged_at = EXCLUDED.flagged_at`,
		userID, messageID, at,
	)
	if isMissingRef(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgRepo.SetFlag: %w", err)
	}
	return nil
}

func (r *MessageRepository) DeleteFlag(ctx context.Context, userID, messageID string) error {
	defer logger.DeferLogDuration("msg.DeleteFlag", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_flags WHERE user_id = $1 AND message_id = $2`, userID, messageID,
	)
	if err != nil && !isMissingRef(err) {
		return fmt.Errorf("msgRepo.DeleteFlag: %w", err)
	}
	return nil
}

func (r *MessageRepository) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	defer logger.DeferLogDuration("msg.CreateAttachment", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_attachments (id, message_id, filename, mime, size_bytes, path, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.MessageID, a.Filename, a.Mime, a.SizeBytes, a.Path, a.UploadedAt,
	)
	if isMissingRef(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgRepo.CreateAttachment: %w", err)
	}
	return nil
}
