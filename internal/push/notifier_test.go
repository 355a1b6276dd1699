package push

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/service"
)

type countingNotifier struct {
	mu     sync.Mutex
	toUser int
	all    int
}

func (c *countingNotifier) ToUser(string, service.Event) {
	c.mu.Lock()
	c.toUser++
	c.mu.Unlock()
}

func (c *countingNotifier) Broadcast(service.Event) {
	c.mu.Lock()
	c.all++
	c.mu.Unlock()
}

func TestNotifierForwardsAndPushes(t *testing.T) {
	got := make(chan NotifyRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notify", r.URL.Path)
		var req NotifyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got <- req
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	next := &countingNotifier{}
	n := NewNotifier(next, NewClient(srv.URL))
	subject := "Homework"
	n.ToUser("P1", service.Event{Type: service.EventMessage, Payload: service.MessagePayload{
		ThreadID: "t1",
		Message:  model.Message{ID: "m1", Subject: &subject, Content: "secret grade"},
	}})
	n.ToUser("P1", service.Event{Type: service.EventTyping, Payload: service.TypingPayload{ThreadID: "t1"}})
	n.Broadcast(service.Event{Type: service.EventPresenceUpdate})

	select {
	case req := <-got:
		assert.Equal(t, "P1", req.UserID)
		assert.Equal(t, "Homework", req.Body)
		assert.NotContains(t, req.Body, "secret")
		assert.Equal(t, "m1", req.Data["message_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("push request not received")
	}

	next.mu.Lock()
	defer next.mu.Unlock()
	assert.Equal(t, 2, next.toUser)
	assert.Equal(t, 1, next.all)
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := NewClient("")
	require.False(t, c.Enabled())
	require.NoError(t, c.Notify(t.Context(), NotifyRequest{UserID: "u"}))
}

func TestOpenBreakerShortCircuitsQuietly(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(nil, NewClient(srv.URL))
	for i := 0; i < 5; i++ {
		err := n.send(NotifyRequest{UserID: "u"})
		require.Error(t, err)
		assert.True(t, reportable(err))
	}
	err := n.send(NotifyRequest{UserID: "u"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, reportable(err))
	assert.False(t, reportable(nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, calls)
}
