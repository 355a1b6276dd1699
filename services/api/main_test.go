package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolmsg/internal/config"
	"github.com/schoolmsg/internal/handler"
	"github.com/schoolmsg/internal/seal"
	"github.com/schoolmsg/internal/service"
	"github.com/schoolmsg/internal/storage/memory"
	"github.com/schoolmsg/internal/ws"
)

func TestRunReturnsConfigError(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PRESENCE_BACKEND", "")
	t.Setenv("STORE_MODE", "sqlite")
	t.Chdir(t.TempDir())

	err := run(false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_MODE")
}

func TestRouterPublicAndInternalRoutes(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:          "router-test-secret",
		CORSAllowedOrigins: "*",
		RateLimitPerMinute: 100,
	}
	sealer, err := seal.New("")
	require.NoError(t, err)
	hub := ws.NewHub(0)
	messaging := service.NewMessaging(memory.New(), sealer, nil, hub, service.MessagingConfig{})
	presence := service.NewPresence(memory.NewPresence(), hub, 0)
	r := newRouter(cfg, messaging, presence, hub, map[string]handler.Pinger{})

	do := func(path, realIP string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "127.0.0.1:5000"
		if realIP != "" {
			req.Header.Set("X-Real-Ip", realIP)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/health", ""))
	assert.Equal(t, http.StatusOK, do("/metrics", ""))
	assert.Equal(t, http.StatusForbidden, do("/metrics", "203.0.113.7"))
	assert.Equal(t, http.StatusUnauthorized, do("/api/messages/inbox", ""))
}
