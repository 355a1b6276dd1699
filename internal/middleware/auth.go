package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/model"
)

// Claims — полезная нагрузка токена, выданного сервисом авторизации.
type Claims struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	IsActive *bool  `json:"isActive,omitempty"`
	jwt.RegisteredClaims
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

// bearerToken берёт токен из Authorization: Bearer или, для WebSocket, из ?token=.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// ParseToken проверяет подпись (только HS256) и срок действия.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// BearerAuth пропускает запрос только с валидным токеном и кладёт user_id и role в контекст.
// Нет токена или он невалиден — 401; isActive=false — 403.
func BearerAuth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeFailure(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}
			claims, err := ParseToken(key, raw)
			if err != nil {
				logger.Debugf("auth rejected token=%s: %v", MaskToken(raw), err)
				writeFailure(w, http.StatusUnauthorized, "Token is not valid")
				return
			}
			if claims.IsActive != nil && !*claims.IsActive {
				writeFailure(w, http.StatusForbidden, "Account is deactivated")
				return
			}
			ctx := WithActor(r.Context(), model.Actor{UserID: claims.ID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
