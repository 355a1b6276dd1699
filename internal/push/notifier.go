package push

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/metrics"
	"github.com/schoolmsg/internal/service"
)

const breakerName = "push-service"

// Notifier передаёт события дальше (обычно в ws.Hub) и дублирует новые сообщения
// в пуш-сервис. Пуш идёт через circuit breaker; ошибки только логируются.
type Notifier struct {
	next    service.Notifier
	client  *Client
	cb      *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
}

func NewNotifier(next service.Notifier, client *Client) *Notifier {
	if next == nil {
		next = service.NopNotifier{}
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %s: %s -> %s", name, from, to)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &Notifier{next: next, client: client, cb: cb, timeout: 10 * time.Second}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (n *Notifier) ToUser(userID string, ev service.Event) {
	n.next.ToUser(userID, ev)
	if ev.Type != service.EventMessage || !n.client.Enabled() {
		return
	}
	p, ok := ev.Payload.(service.MessagePayload)
	if !ok {
		return
	}
	req := NotifyRequest{
		UserID: userID,
		Title:  "Новое сообщение",
		Body:   preview(p),
		Data:   map[string]string{"thread_id": p.ThreadID, "message_id": p.Message.ID},
	}
	go n.deliver(req)
}

func (n *Notifier) Broadcast(ev service.Event) {
	n.next.Broadcast(ev)
}

func (n *Notifier) deliver(req NotifyRequest) {
	if err := n.send(req); reportable(err) {
		logger.Warnf("push notify user=%s: %v", req.UserID, err)
	}
}

func (n *Notifier) send(req NotifyRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	_, err := n.cb.Execute(func() (struct{}, error) {
		return struct{}{}, n.client.Notify(ctx, req)
	})
	return err
}

// reportable — отказы открытого breaker не логируются по одному: смена состояния уже в логе.
func reportable(err error) bool {
	return err != nil &&
		!errors.Is(err, gobreaker.ErrOpenState) &&
		!errors.Is(err, gobreaker.ErrTooManyRequests)
}

// preview не раскрывает содержимое: в пуш уходит только тема.
func preview(p service.MessagePayload) string {
	if p.Message.Subject != nil && *p.Message.Subject != "" {
		return *p.Message.Subject
	}
	return "Откройте приложение, чтобы прочитать"
}
