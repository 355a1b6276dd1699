// Package memory — хранилище для режима разработки: всё живёт в памяти процесса
// и теряется при перезапуске. Между процессами состояние не разделяется.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/storage"
)

var _ storage.MessageStore = (*Store)(nil)

type markerKey struct {
	userID string
	target string
}

type Store struct {
	mu          sync.RWMutex
	threads     map[string]*model.Thread
	messages    map[string]*model.Message
	byThread    map[string][]string
	flags       map[markerKey]time.Time
	archives    map[markerKey]time.Time
	attachments []model.Attachment
	audit       []model.AuditEntry
}

func New() *Store {
	return &Store{
		threads:  make(map[string]*model.Thread),
		messages: make(map[string]*model.Message),
		byThread: make(map[string][]string),
		flags:    make(map[markerKey]time.Time),
		archives: make(map[markerKey]time.Time),
	}
}

func copyThread(t *model.Thread) *model.Thread {
	c := *t
	c.Participants = append([]model.Participant(nil), t.Participants...)
	return &c
}

func (s *Store) CreateThread(ctx context.Context, t *model.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = copyThread(t)
	s.byThread[t.ID] = nil
	return nil
}

func (s *Store) GetThread(ctx context.Context, threadID string) (*model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyThread(t), nil
}

func (s *Store) ListThreads(ctx context.Context, userID string) ([]model.ThreadSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ThreadSummary, 0, 8)
	for _, t := range s.threads {
		if !t.HasParticipant(userID) {
			continue
		}
		_, archived := s.archives[markerKey{userID, t.ID}]
		out = append(out, model.ThreadSummary{
			ThreadHeader: model.ThreadHeader{ID: t.ID, Subject: t.Subject, LastMessageAt: t.LastMessageAt},
			Archived:     archived,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *Store) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return false, nil
	}
	return t.HasParticipant(userID), nil
}

func (s *Store) FindDirectThread(ctx context.Context, userA, userB string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *model.Thread
	for _, t := range s.threads {
		if len(t.Participants) != 2 || !t.HasParticipant(userA) || !t.HasParticipant(userB) {
			continue
		}
		if best == nil || t.LastMessageAt.After(best.LastMessageAt) {
			best = t
		}
	}
	if best == nil {
		return "", storage.ErrNotFound
	}
	return best.ID, nil
}

func (s *Store) TouchThread(ctx context.Context, threadID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return storage.ErrNotFound
	}
	t.LastMessageAt = at
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[m.ThreadID]; !ok {
		return storage.ErrNotFound
	}
	c := *m
	s.messages[m.ID] = &c
	s.byThread[m.ThreadID] = append(s.byThread[m.ThreadID], m.ID)
	return nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *Store) ThreadMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byThread[threadID]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.messages[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Inbox(ctx context.Context, userID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, 0, 16)
	for _, m := range s.messages {
		if m.ToUserID == userID {
			out = append(out, *m)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
}

func (s *Store) MarkRead(ctx context.Context, messageID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if m.ReadAt != nil {
		return false, nil
	}
	m.ReadAt = &at
	return true, nil
}

func (s *Store) MarkDelivered(ctx context.Context, messageID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if m.DeliveredAt != nil {
		return false, nil
	}
	m.DeliveredAt = &at
	return true, nil
}

func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	out := make([]model.Message, 0, 16)
	for _, m := range s.messages {
		t, ok := s.threads[m.ThreadID]
		if !ok || !t.HasParticipant(userID) {
			continue
		}
		subject := ""
		if m.Subject != nil {
			subject = *m.Subject
		}
		if strings.Contains(strings.ToLower(subject), q) || strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, *m)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetFlag(ctx context.Context, userID, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return storage.ErrNotFound
	}
	s.flags[markerKey{userID, messageID}] = at
	return nil
}

func (s *Store) DeleteFlag(ctx context.Context, userID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, markerKey{userID, messageID})
	return nil
}

func (s *Store) SetArchive(ctx context.Context, userID, threadID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return storage.ErrNotFound
	}
	s.archives[markerKey{userID, threadID}] = at
	return nil
}

func (s *Store) DeleteArchive(ctx context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.archives, markerKey{userID, threadID})
	return nil
}

// IsFlagged — для тестов и отладки.
func (s *Store) IsFlagged(userID, messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.flags[markerKey{userID, messageID}]
	return ok
}

func (s *Store) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[a.MessageID]; !ok {
		return storage.ErrNotFound
	}
	s.attachments = append(s.attachments, *a)
	return nil
}

// Attachments возвращает вложения сообщения.
func (s *Store) Attachments(messageID string) []model.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Attachment
	for _, a := range s.attachments {
		if a.MessageID == messageID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Audit(ctx context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *e)
	return nil
}

// AuditLog возвращает копию журнала аудита.
func (s *Store) AuditLog() []model.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditEntry(nil), s.audit...)
}
