package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/storage"
)

var _ storage.PresenceStore = (*Presence)(nil)

type Presence struct {
	mu      sync.RWMutex
	records map[string]model.PresenceRecord
}

func NewPresence() *Presence {
	return &Presence{records: make(map[string]model.PresenceRecord)}
}

func (p *Presence) Upsert(ctx context.Context, rec *model.PresenceRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[rec.UserID] = *rec
	return nil
}

func (p *Presence) SetOffline(ctx context.Context, userID string, at time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[userID]
	if !ok {
		return false, nil
	}
	rec.IsOnline = false
	rec.LastSeen = at
	p.records[userID] = rec
	return true, nil
}

func (p *Presence) ListActive(ctx context.Context, role, classID string) ([]model.PresenceRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.PresenceRecord, 0, len(p.records))
	for _, rec := range p.records {
		if !rec.IsOnline {
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
	SortPresence(out)
	return out, nil
}

// SortPresence упорядочивает записи по role, затем по user_id.
func SortPresence(recs []model.PresenceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Role != recs[j].Role {
			return recs[i].Role < recs[j].Role
		}
		return recs[i].UserID < recs[j].UserID
	})
}
