package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/model"
)

type PresenceRepository struct {
	pool *pgxpool.Pool
}

func NewPresenceRepository(pool *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{pool: pool}
}

func (r *PresenceRepository) Upsert(ctx context.Context, rec *model.PresenceRecord) error {
	defer logger.DeferLogDuration("presence.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_presence (user_id, role, class_id, is_online, last_seen)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET role = EXCLUDED.role, class_id = EXCLUDED.class_id, is_online = EXCLUDED.is_online, last_seen = EXCLUDED.last_seen`,
		rec.UserID, rec.Role, rec.ClassID, rec.IsOnline, rec.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("presenceRepo.Upsert: %w", err)
	}
	return nil
}

func (r *PresenceRepository) SetOffline(ctx context.Context, userID string, at time.Time) (bool, error) {
	defer logger.DeferLogDuration("presence.SetOffline", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_presence SET is_online = FALSE, last_seen = $1 WHERE user_id = $2`, at, userID,
	)
	if err != nil {
		return false, fmt.Errorf("presenceRepo.SetOffline: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetOnline помечает всех офлайн; вызывается при старте, т.к. сокеты прошлого процесса мертвы.
func (r *PresenceRepository) ResetOnline(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `UPDATE user_presence SET is_online = FALSE WHERE is_online`); err != nil {
		return fmt.Errorf("presenceRepo.ResetOnline: %w", err)
	}
	return nil
}

func (r *PresenceRepository) ListActive(ctx context.Context, role, classID string) ([]model.PresenceRecord, error) {
	defer logger.DeferLogDuration("presence.ListActive", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, role, class_id, is_online, last_seen
		 FROM user_presence
		 WHERE is_online = TRUE
		   AND ($1::text = '' OR role = $1)
		   AND ($2::text = '' OR class_id = $2)
		 ORDER BY role, user_id`, role, classID,
	)
	if err != nil {
		return nil, fmt.Errorf("presenceRepo.ListActive query: %w", err)
	}
	defer rows.Close()

	out := make([]model.PresenceRecord, 0, 32)
	for rows.Next() {
		var rec model.PresenceRecord
		if err := rows.Scan(&rec.UserID, &rec.Role, &rec.ClassID, &rec.IsOnline, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("presenceRepo.ListActive scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("presenceRepo.ListActive rows: %w", err)
	}
	return out, nil
}
