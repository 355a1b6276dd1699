// Package redis — хранилище присутствия в Redis, общее для нескольких экземпляров API.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/storage"
	"github.com/schoolmsg/internal/storage/memory"
)

const (
	keyPrefix = "presence:"
	onlineSet = "presence:online"
)

var _ storage.PresenceStore = (*Presence)(nil)

// Presence хранит запись в хеше presence:{user_id}; онлайн-пользователи
// дополнительно лежат в множестве presence:online.
type Presence struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Presence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Presence{cli: cli}, nil
}

// NewFromClient — для уже настроенного клиента (тесты, общий пул).
func NewFromClient(cli *redis.Client) *Presence {
	return &Presence{cli: cli}
}

func (p *Presence) Close() error {
	return p.cli.Close()
}

func (p *Presence) Ping(ctx context.Context) error {
	return p.cli.Ping(ctx).Err()
}

func (p *Presence) Upsert(ctx context.Context, rec *model.PresenceRecord) error {
	classID := ""
	if rec.ClassID != nil {
		classID = *rec.ClassID
	}
	online := "0"
	if rec.IsOnline {
		online = "1"
	}
	_, err := p.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyPrefix+rec.UserID,
			"role", rec.Role,
			"class_id", classID,
			"is_online", online,
			"last_seen", rec.LastSeen.UTC().Format(time.RFC3339Nano),
		)
		if rec.IsOnline {
			pipe.SAdd(ctx, onlineSet, rec.UserID)
		} else {
			pipe.SRem(ctx, onlineSet, rec.UserID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis presence upsert: %w", err)
	}
	return nil
}

func (p *Presence) SetOffline(ctx context.Context, userID string, at time.Time) (bool, error) {
	n, err := p.cli.Exists(ctx, keyPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis presence exists: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	_, err = p.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyPrefix+userID, "is_online", "0", "last_seen", at.UTC().Format(time.RFC3339Nano))
		pipe.SRem(ctx, onlineSet, userID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis presence offline: %w", err)
	}
	return true, nil
}

// ResetOnline помечает офлайн всех из presence:online и очищает множество.
func (p *Presence) ResetOnline(ctx context.Context) error {
	ids, err := p.cli.SMembers(ctx, onlineSet).Result()
	if err != nil {
		return fmt.Errorf("redis presence members: %w", err)
	}
	_, err = p.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.HSet(ctx, keyPrefix+id, "is_online", "0")
		}
		pipe.Del(ctx, onlineSet)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis presence reset: %w", err)
	}
	return nil
}

func (p *Presence) ListActive(ctx context.Context, role, classID string) ([]model.PresenceRecord, error) {
	ids, err := p.cli.SMembers(ctx, onlineSet).Result()
	if err != nil {
		return nil, fmt.Errorf("redis presence members: %w", err)
	}
	if len(ids) == 0 {
		return []model.PresenceRecord{}, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = p.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, keyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis presence load: %w", err)
	}

	out := make([]model.PresenceRecord, 0, len(ids))
	for i, cmd := range cmds {
		rec, ok := decode(ids[i], cmd.Val())
		if !ok || !rec.IsOnline {
			continue
		}
		if role != "" && rec.Role != role {
			continue
		}
		if classID != "" && (rec.ClassID == nil || *rec.ClassID != classID) {
			continue
		}
		out = append(out, rec)
	}
	memory.SortPresence(out)
	return out, nil
}

func decode(userID string, h map[string]string) (model.PresenceRecord, bool) {
	if len(h) == 0 {
		return model.PresenceRecord{}, false
	}
	rec := model.PresenceRecord{UserID: userID, Role: h["role"], IsOnline: h["is_online"] == "1"}
	if c := h["class_id"]; c != "" {
		rec.ClassID = &c
	}
	if ts, err := time.Parse(time.RFC3339Nano, h["last_seen"]); err == nil {
		rec.LastSeen = ts
	}
	return rec, true
}
