package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/model"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *AuditRepository) Audit(ctx context.Context, e *model.AuditEntry) error {
	defer logger.DeferLogDuration("audit.Insert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_audit (id, actor_user_id, action, message_id, thread_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ActorUserID, e.Action, nullable(e.MessageID), nullable(e.ThreadID), e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("auditRepo.Insert: %w", err)
	}
	return nil
}
