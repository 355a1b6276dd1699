// Package apperr задаёт таксономию ошибок сервиса и их отображение в HTTP-статусы.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "server"
	}
}

// Error — ошибка с видом и сообщением, безопасным для клиента.
// Err (если есть) остаётся только в логах.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func Auth(msg string) error { return &Error{Kind: KindAuth, Message: msg} }

func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// Unavailable — хранилище не ответило вовремя; запрос можно повторить.
func Unavailable(err error) error {
	return &Error{Kind: KindUnavailable, Message: "Service temporarily unavailable", Err: err}
}

func Internal(err error) error {
	return &Error{Kind: KindServer, Message: "Server error", Err: err}
}

// KindOf возвращает вид ошибки; любая ошибка вне таксономии считается серверной,
// а истёкший дедлайн — Unavailable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindServer
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// Message возвращает текст для клиента. Для неклассифицированных ошибок — "Server error".
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Service temporarily unavailable"
	}
	return "Server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
