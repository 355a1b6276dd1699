package middleware

import (
	"context"

	"github.com/schoolmsg/internal/model"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "role"
)

// GetUserID возвращает user_id из контекста (устанавливается BearerAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}

// GetActor собирает model.Actor из контекста запроса.
func GetActor(ctx context.Context) model.Actor {
	return model.Actor{UserID: GetUserID(ctx), Role: GetRole(ctx)}
}

// WithActor кладёт пользователя в контекст.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, actor.UserID)
	return context.WithValue(ctx, RoleKey, actor.Role)
}
