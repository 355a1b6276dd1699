package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schoolmsg/internal/storage"
)

var (
	_ storage.MessageStore  = (*Store)(nil)
	_ storage.PresenceStore = (*PresenceRepository)(nil)
)

// Store собирает репозитории в storage.MessageStore для продового режима.
type Store struct {
	*ThreadRepository
	*MessageRepository
	*AuditRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		ThreadRepository:  NewThreadRepository(pool),
		MessageRepository: NewMessageRepository(pool),
		AuditRepository:   NewAuditRepository(pool),
	}
}
