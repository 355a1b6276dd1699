package ws

import (
	"context"
	"sync"
	"time"

	"github.com/schoolmsg/internal/apperr"
	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/metrics"
	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/service"
)

const handleTimeout = 10 * time.Second

// MessagingEvents — то, что клиент может сделать с сообщениями через сокет.
type MessagingEvents interface {
	Typing(ctx context.Context, actor model.Actor, threadID string, typing bool) error
	MarkDelivered(ctx context.Context, actor model.Actor, messageID string) error
}

type PresenceEvents interface {
	SetOnline(ctx context.Context, actor model.Actor, classID string) error
	SetOffline(ctx context.Context, actor model.Actor) error
}

var _ service.Notifier = (*Hub)(nil)

// Hub держит соединения по пользователям: у одного пользователя их может быть
// несколько, событие user-<id> получают все.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	messaging  MessagingEvents
	presence   PresenceEvents
	register   chan *Client
	unregister chan *Client
	// stopping закрывается в начале shutdown: Register/Unregister больше не ждут Run.
	stopping chan struct{}
	done     chan struct{}
}

func NewHub(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Bind подключает обработчики входящих событий. Вызывается до Run.
func (h *Hub) Bind(messaging MessagingEvents, presence PresenceEvents) {
	h.messaging = messaging
	h.presence = presence
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// readPump каждого клиента вызывает Unregister при выходе, а Run канал уже не читает.
	close(h.stopping)

	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	metrics.WSConnections.Sub(float64(h.total))
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.actor.UserID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.actor.UserID]; !ok {
		h.clients[c.actor.UserID] = make(map[*Client]struct{})
	}
	h.clients[c.actor.UserID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	metrics.WSConnections.Inc()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.actor.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.actor.UserID)
	}
	h.mu.Unlock()
	metrics.WSConnections.Dec()

	// Network I/O outside the lock.
	c.Close()
}

// Connections — число открытых соединений пользователя.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.HandleMessage", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case EventTypingStart, EventTypingStop:
		if h.messaging == nil {
			return
		}
		err = h.messaging.Typing(ctx, c.actor, msg.ThreadID, msg.Type == EventTypingStart)
	case EventMessageAck:
		if h.messaging == nil {
			return
		}
		err = h.messaging.MarkDelivered(ctx, c.actor, msg.MessageID)
	case EventPresenceOnline:
		if h.presence == nil {
			return
		}
		err = h.presence.SetOnline(ctx, c.actor, msg.ClassID)
	case EventPresenceOffline:
		if h.presence == nil {
			return
		}
		err = h.presence.SetOffline(ctx, c.actor)
	default:
		h.sendToClient(c, errorMessage("unknown event type"))
		return
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindServer {
			logger.Errorf("ws %s user=%s: %v", msg.Type, c.actor.UserID, err)
		}
		h.sendToClient(c, errorMessage(apperr.Message(err)))
	}
}

// ToUser реализует service.Notifier: событие уходит во все соединения пользователя.
func (h *Hub) ToUser(userID string, ev service.Event) {
	if h.sendToUser(userID, ev) {
		metrics.RealtimeEvents.WithLabelValues(string(ev.Type)).Inc()
	}
}

func (h *Hub) Broadcast(ev service.Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
	if len(targets) > 0 {
		metrics.RealtimeEvents.WithLabelValues(string(ev.Type)).Inc()
	}
}

func (h *Hub) sendToUser(userID string, msg OutgoingMessage) bool {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return false
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
	return len(targets) > 0
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.actor.UserID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopping:
		c.Close()
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopping:
	case <-h.done:
	}
}
