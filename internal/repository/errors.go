package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/schoolmsg/internal/storage"
)

var ErrNotFound = storage.ErrNotFound

// isMissingRef — ссылка на несуществующий тред или сообщение:
// нарушение внешнего ключа (23503) или id, который не является UUID (22P02).
func isMissingRef(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23503" || pgErr.Code == "22P02")
}
