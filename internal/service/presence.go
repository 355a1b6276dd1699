package service

import (
	"context"
	"strings"
	"time"

	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/storage"
)

// Presence — явные отметки онлайн/офлайн. Heartbeat нет: запись отражает
// только последний вызов пользователя.
type Presence struct {
	store   storage.PresenceStore
	notify  Notifier
	timeout time.Duration
	now     func() time.Time
}

func NewPresence(store storage.PresenceStore, notify Notifier, timeout time.Duration) *Presence {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Presence{
		store:   store,
		notify:  notify,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *Presence) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	p.notify = n
}

func (p *Presence) SetOnline(ctx context.Context, actor model.Actor, classID string) error {
	rec := &model.PresenceRecord{
		UserID:   actor.UserID,
		Role:     actor.Role,
		IsOnline: true,
		LastSeen: p.now(),
	}
	if c := strings.TrimSpace(classID); c != "" {
		rec.ClassID = &c
	}
	if err := exec(ctx, p.timeout, "presence.upsert", func(ctx context.Context) error {
		return p.store.Upsert(ctx, rec)
	}); err != nil {
		return err
	}
	p.notify.Broadcast(Event{Type: EventPresenceUpdate, Payload: PresenceUpdatePayload{
		UserID:   rec.UserID,
		Role:     rec.Role,
		ClassID:  rec.ClassID,
		IsOnline: true,
		LastSeen: rec.LastSeen,
	}})
	return nil
}

// SetOffline без существующей записи ничего не делает и не рассылает.
func (p *Presence) SetOffline(ctx context.Context, actor model.Actor) error {
	at := p.now()
	found, err := call(ctx, p.timeout, "presence.set_offline", func(ctx context.Context) (bool, error) {
		return p.store.SetOffline(ctx, actor.UserID, at)
	})
	if err != nil || !found {
		return err
	}
	p.notify.Broadcast(Event{Type: EventPresenceUpdate, Payload: PresenceUpdatePayload{
		UserID:   actor.UserID,
		Role:     actor.Role,
		IsOnline: false,
		LastSeen: at,
	}})
	return nil
}

// ListActive — онлайн-пользователи, пустые role/classID не фильтруют.
func (p *Presence) ListActive(ctx context.Context, role, classID string) ([]model.PresenceRecord, error) {
	recs, err := call(ctx, p.timeout, "presence.list_active", func(ctx context.Context) ([]model.PresenceRecord, error) {
		return p.store.ListActive(ctx, strings.TrimSpace(role), strings.TrimSpace(classID))
	})
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.PresenceRecord{}
	}
	return recs, nil
}
