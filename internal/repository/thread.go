package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/model"
)

type ThreadRepository struct {
	pool *pgxpool.Pool
}

func NewThreadRepository(pool *pgxpool.Pool) *ThreadRepository {
	return &ThreadRepository{pool: pool}
}

// CreateThread пишет тред и участников в одной транзакции.
func (r *ThreadRepository) CreateThread(ctx context.Context, t *model.Thread) error {
	defer logger.DeferLogDuration("thread.Create", time.Now())()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO message_threads (id, subject, last_message_at) VALUES ($1, $2, $3)`,
			t.ID, t.Subject, t.LastMessageAt,
		); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, p := range t.Participants {
			batch.Queue(
				`INSERT INTO message_participants (thread_id, user_id, role) VALUES ($1, $2, $3)
				 ON CONFLICT (thread_id, user_id) DO NOTHING`,
				t.ID, p.UserID, p.Role,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("threadRepo.Create: %w", err)
	}
	return nil
}

func (r *ThreadRepository) GetThread(ctx context.Context, threadID string) (*model.Thread, error) {
	defer logger.DeferLogDuration("thread.Get", time.Now())()
	t := &model.Thread{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, COALESCE(subject, ''), last_message_at FROM message_threads WHERE id = $1`, threadID,
	).Scan(&t.ID, &t.Subject, &t.LastMessageAt)
	if errors.Is(err, pgx.ErrNoRows) || isMissingRef(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("threadRepo.Get: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT user_id, role FROM message_participants WHERE thread_id = $1 ORDER BY user_id`, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("threadRepo.Get participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.UserID, &p.Role); err != nil {
			return nil, fmt.Errorf("threadRepo.Get scan: %w", err)
		}
		t.Participants = append(t.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("threadRepo.Get rows: %w", err)
	}
	return t, nil
}

func (r *ThreadRepository) ListThreads(ctx context.Context, userID string) ([]model.ThreadSummary, error) {
	defer logger.DeferLogDuration("thread.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, COALESCE(t.subject, ''), t.last_message_at,
		        EXISTS(SELECT 1 FROM message_archives a WHERE a.thread_id = t.id AND a.user_id = $1)
		 FROM message_threads t
		 JOIN message_participants p ON p.thread_id = t.id
		 WHERE p.user_id = $1
		 ORDER BY t.last_message_at DESC, t.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("threadRepo.List query: %w", err)
	}
	defer rows.Close()

	threads := make([]model.ThreadSummary, 0, 16)
	for rows.Next() {
		var s model.ThreadSummary
		if err := rows.Scan(&s.ID, &s.Subject, &s.LastMessageAt, &s.Archived); err != nil {
			return nil, fmt.Errorf("threadRepo.List scan: %w", err)
		}
		threads = append(threads, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("threadRepo.List rows: %w", err)
	}
	return threads, nil
}

func (r *ThreadRepository) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	defer logger.DeferLogDuration("thread.IsParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM message_participants WHERE thread_id = $1 AND user_id = $2)`,
		threadID, userID,
	).Scan(&exists)
	if isMissingRef(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("threadRepo.IsParticipant: %w", err)
	}
	return exists, nil
}

func (r *ThreadRepository) FindDirectThread(ctx context.Context, userA, userB string) (string, error) {
	defer logger.DeferLogDuration("thread.FindDirect", time.Now())()
	var id string
	err := r.pool.QueryRow(ctx,
		`SELECT t.id
		 FROM message_threads t
		 WHERE EXISTS (SELECT 1 FROM message_participants WHERE thread_id = t.id AND user_id = $1)
		   AND EXISTS (SELECT 1 FROM message_participants WHERE thread_id = t.id AND user_id = $2)
		   AND (SELECT COUNT(*) FROM message_participants WHERE thread_id = t.id) = 2
		 ORDER BY t.last_message_at DESC
		 LIMIT 1`,
		userA, userB,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) || isMissingRef(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("threadRepo.FindDirect: %w", err)
	}
	return id, nil
}

func (r *ThreadRepository) TouchThread(ctx context.Context, threadID string, at time.Time) error {
	defer logger.DeferLogDuration("thread.Touch", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE message_threads SET last_message_at = $1 WHERE id = $2`, at, threadID,
	)
	if isMissingRef(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("threadRepo.Touch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ThreadRepository) SetArchive(ctx context.Context, userID, threadID string, at time.Time) error {
	defer logger.DeferLogDuration("thread.SetArchive", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_archives (user_id, thread_id, archived_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, thread_id) DO UPDATE SET archived_at = EXCLUDED.archived_at`,
		userID, threadID, at,
	)
	if isMissingRef(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("threadRepo.SetArchive: %w", err)
	}
	return nil
}

func (r *ThreadRepository) DeleteArchive(ctx context.Context, userID, threadID string) error {
	defer logger.DeferLogDuration("thread.DeleteArchive", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_archives WHERE user_id = $1 AND thread_id = $2`, userID, threadID,
	)
	if err != nil && !isMissingRef(err) {
		return fmt.Errorf("threadRepo.DeleteArchive: %w", err)
	}
	return nil
}
