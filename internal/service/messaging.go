// Package service — сценарии сообщений и присутствия поверх интерфейсов хранилища.
// Здесь проверяются права, шифруется содержимое и рассылаются realtime-события.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schoolmsg/internal/apperr"
	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/metrics"
	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/seal"
	"github.com/schoolmsg/internal/storage"
)

const (
	SearchLimit               = 200
	DefaultMaxAttachmentBytes = 10 << 20
)

// AttachmentSaver пишет байты вложения и возвращает итоговое имя файла и путь.
type AttachmentSaver interface {
	Save(messageID, name string, data []byte, at time.Time) (filename, path string, err error)
}

type MessagingConfig struct {
	StoreTimeout time.Duration
	// DedupDirectThreads: при отправке без threadId переиспользовать последний
	// тред ровно из двух собеседников вместо создания нового.
	DedupDirectThreads bool
	MaxAttachmentBytes int64
}

type Messaging struct {
	store  storage.MessageStore
	sealer *seal.Sealer
	files  AttachmentSaver
	notify Notifier
	cfg    MessagingConfig
	now    func() time.Time
	newID  func() string
}

func NewMessaging(store storage.MessageStore, sealer *seal.Sealer, files AttachmentSaver, notify Notifier, cfg MessagingConfig) *Messaging {
	if notify == nil {
		notify = NopNotifier{}
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	return &Messaging{
		store:  store,
		sealer: sealer,
		files:  files,
		notify: notify,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// SetNotifier подключает realtime после создания сервиса (хаб создаётся позже).
func (m *Messaging) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	m.notify = n
}

func normalizeParticipants(in []model.Participant) ([]model.Participant, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Participant, 0, len(in))
	for _, p := range in {
		p.UserID = strings.TrimSpace(p.UserID)
		p.Role = strings.TrimSpace(p.Role)
		if p.UserID == "" || p.Role == "" {
			return nil, apperr.Validation("Each participant needs id and role")
		}
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, p)
	}
	if len(out) < 2 {
		return nil, apperr.Validation("At least two participants required")
	}
	return out, nil
}

func (m *Messaging) newThread(ctx context.Context, subject string, participants []model.Participant, path string) (*model.Thread, error) {
	if strings.TrimSpace(subject) == "" {
		subject = model.DefaultThreadSubject
	}
	t := &model.Thread{
		ID:            m.newID(),
		Subject:       subject,
		LastMessageAt: m.now(),
		Participants:  participants,
	}
	if err := exec(ctx, m.cfg.StoreTimeout, "thread.create", func(ctx context.Context) error {
		return m.store.CreateThread(ctx, t)
	}); err != nil {
		return nil, err
	}
	metrics.ThreadsCreated.WithLabelValues(path).Inc()
	return t, nil
}

// CreateThread создаёт тред с явным составом. Доступно только учителям.
func (m *Messaging) CreateThread(ctx context.Context, actor model.Actor, subject string, participants []model.Participant) (string, error) {
	ps, err := normalizeParticipants(participants)
	if err != nil {
		return "", err
	}
	if actor.Role != model.RoleTeacher {
		return "", apperr.Forbidden("Only teachers can create threads")
	}
	t, err := m.newThread(ctx, subject, ps, "explicit")
	if err != nil {
		return "", err
	}
	m.audit(ctx, model.AuditEntry{
		ActorUserID: actor.UserID,
		Action:      model.AuditActionThreadCreate,
		ThreadID:    t.ID,
		Metadata:    map[string]any{"count": len(ps)},
	})
	return t.ID, nil
}

// FindOrCreateThread возвращает тред для пары from/to. Без DedupDirectThreads
// каждый вызов создаёт новый тред.
func (m *Messaging) FindOrCreateThread(ctx context.Context, from model.Actor, to model.Participant, subject string) (*model.Thread, error) {
	if m.cfg.DedupDirectThreads {
		id, err := call(ctx, m.cfg.StoreTimeout, "thread.findDirect", func(ctx context.Context) (string, error) {
			return m.store.FindDirectThread(ctx, from.UserID, to.UserID)
		})
		switch {
		case err == nil:
			return m.getThread(ctx, id)
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}
	return m.newThread(ctx, subject, []model.Participant{
		{UserID: from.UserID, Role: from.Role},
		{UserID: to.UserID, Role: to.Role},
	}, "direct")
}

func (m *Messaging) getThread(ctx context.Context, threadID string) (*model.Thread, error) {
	t, err := call(ctx, m.cfg.StoreTimeout, "thread.get", func(ctx context.Context) (*model.Thread, error) {
		return m.store.GetThread(ctx, threadID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Thread not found")
	}
	return t, err
}

// participantThread — тред, в котором actor обязан участвовать.
func (m *Messaging) participantThread(ctx context.Context, actor model.Actor, threadID string) (*model.Thread, error) {
	if threadID == "" {
		return nil, apperr.Validation("threadId is required")
	}
	t, err := m.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !t.HasParticipant(actor.UserID) {
		return nil, apperr.Forbidden("Forbidden")
	}
	return t, nil
}

func (m *Messaging) ListThreads(ctx context.Context, actor model.Actor) ([]model.ThreadSummary, error) {
	threads, err := call(ctx, m.cfg.StoreTimeout, "thread.list", func(ctx context.Context) ([]model.ThreadSummary, error) {
		return m.store.ListThreads(ctx, actor.UserID)
	})
	if err == nil && threads == nil {
		threads = []model.ThreadSummary{}
	}
	return threads, err
}

func (m *Messaging) GetThread(ctx context.Context, actor model.Actor, threadID string) (*model.ThreadDetail, error) {
	t, err := m.participantThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	msgs, err := call(ctx, m.cfg.StoreTimeout, "message.thread", func(ctx context.Context) ([]model.Message, error) {
		return m.store.ThreadMessages(ctx, t.ID)
	})
	if err != nil {
		return nil, err
	}
	return &model.ThreadDetail{
		Thread:       model.ThreadHeader{ID: t.ID, Subject: t.Subject, LastMessageAt: t.LastMessageAt},
		Participants: t.Participants,
		Messages:     m.openAll(msgs),
	}, nil
}

func (m *Messaging) Inbox(ctx context.Context, actor model.Actor) ([]model.Message, error) {
	msgs, err := call(ctx, m.cfg.StoreTimeout, "message.inbox", func(ctx context.Context) ([]model.Message, error) {
		return m.store.Inbox(ctx, actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return m.openAll(msgs), nil
}

// openAll расшифровывает содержимое; пустой результат — [], не null.
func (m *Messaging) openAll(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	for i := range msgs {
		msgs[i].Content = m.sealer.Open(msgs[i].Content)
	}
	return msgs
}

type SendInput struct {
	ThreadID  string
	ToRole    string
	ToID      string
	Subject   string
	Content   string
	Sensitive bool
}

// Send создаёт по сообщению на каждого участника треда, кроме отправителя.
// Уже записанные сообщения при ошибке не откатываются.
func (m *Messaging) Send(ctx context.Context, actor model.Actor, in SendInput) ([]model.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Validation("content is required")
	}
	if in.ThreadID == "" && (in.ToRole == "" || in.ToID == "") {
		return nil, apperr.Validation("toRole, toId, and content or threadId are required")
	}

	var (
		t   *model.Thread
		err error
	)
	if in.ThreadID != "" {
		t, err = m.participantThread(ctx, actor, in.ThreadID)
	} else {
		if in.ToID == actor.UserID {
			return nil, apperr.Validation("Cannot send a message to yourself")
		}
		t, err = m.FindOrCreateThread(ctx, actor, model.Participant{UserID: in.ToID, Role: in.ToRole}, in.Subject)
	}
	if err != nil {
		return nil, err
	}

	stored, err := m.sealer.Seal(in.Content, in.Sensitive)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	var subject *string
	if in.Subject != "" {
		s := in.Subject
		subject = &s
	}

	created := make([]model.Message, 0, len(t.Participants))
	for _, p := range t.Participants {
		if p.UserID == actor.UserID {
			continue
		}
		msg := model.Message{
			ID:         m.newID(),
			ThreadID:   t.ID,
			FromUserID: actor.UserID,
			FromRole:   actor.Role,
			ToUserID:   p.UserID,
			ToRole:     p.Role,
			Subject:    subject,
			Content:    stored,
			CreatedAt:  m.now(),
		}
		if err := exec(ctx, m.cfg.StoreTimeout, "message.create", func(ctx context.Context) error {
			return m.store.CreateMessage(ctx, &msg)
		}); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperr.NotFound("Thread not found")
			}
			return nil, err
		}
		metrics.RecordMessageSent(in.Sensitive)

		msg.Content = in.Content
		created = append(created, msg)
		m.notify.ToUser(p.UserID, Event{Type: EventMessage, Payload: MessagePayload{ThreadID: t.ID, Message: msg}})
		m.audit(ctx, model.AuditEntry{
			ActorUserID: actor.UserID,
			Action:      model.AuditActionSend,
			MessageID:   msg.ID,
			ThreadID:    t.ID,
			Metadata:    map[string]any{"sensitive": in.Sensitive},
		})
	}

	if err := exec(ctx, m.cfg.StoreTimeout, "thread.touch", func(ctx context.Context) error {
		return m.store.TouchThread(ctx, t.ID, m.now())
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// recipientMessage — сообщение, адресованное actor.
func (m *Messaging) recipientMessage(ctx context.Context, actor model.Actor, messageID string) (*model.Message, error) {
	if messageID == "" {
		return nil, apperr.Validation("messageId is required")
	}
	msg, err := m.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ToUserID != actor.UserID {
		return nil, apperr.Forbidden("Forbidden")
	}
	return msg, nil
}

func (m *Messaging) getMessage(ctx context.Context, messageID string) (*model.Message, error) {
	msg, err := call(ctx, m.cfg.StoreTimeout, "message.get", func(ctx context.Context) (*model.Message, error) {
		return m.store.GetMessage(ctx, messageID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Message not found")
	}
	return msg, err
}

// MarkRead ставит read_at один раз; повторный вызов ничего не меняет и событие не шлёт.
func (m *Messaging) MarkRead(ctx context.Context, actor model.Actor, messageID string) error {
	msg, err := m.recipientMessage(ctx, actor, messageID)
	if err != nil {
		return err
	}
	changed, err := call(ctx, m.cfg.StoreTimeout, "message.markRead", func(ctx context.Context) (bool, error) {
		return m.store.MarkRead(ctx, msg.ID, m.now())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Message not found")
	}
	if err != nil {
		return err
	}
	if changed {
		m.notify.ToUser(msg.FromUserID, Event{Type: EventMessageStatus, Payload: MessageStatusPayload{MessageID: msg.ID, Read: true}})
	}
	return nil
}

// MarkDelivered — подтверждение доставки от клиента получателя.
func (m *Messaging) MarkDelivered(ctx context.Context, actor model.Actor, messageID string) error {
	msg, err := m.recipientMessage(ctx, actor, messageID)
	if err != nil {
		return err
	}
	changed, err := call(ctx, m.cfg.StoreTimeout, "message.markDelivered", func(ctx context.Context) (bool, error) {
		return m.store.MarkDelivered(ctx, msg.ID, m.now())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Message not found")
	}
	if err != nil {
		return err
	}
	if changed {
		m.notify.ToUser(msg.FromUserID, Event{Type: EventMessageStatus, Payload: MessageStatusPayload{MessageID: msg.ID, Delivered: true}})
	}
	return nil
}

// Search ищет в тредах пользователя. Зашифрованное содержимое по тексту не находится,
// только по теме.
func (m *Messaging) Search(ctx context.Context, actor model.Actor, query string) ([]model.Message, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []model.Message{}, nil
	}
	msgs, err := call(ctx, m.cfg.StoreTimeout, "message.search", func(ctx context.Context) ([]model.Message, error) {
		return m.store.Search(ctx, actor.UserID, q, SearchLimit)
	})
	if err != nil {
		return nil, err
	}
	lq := strings.ToLower(q)
	out := msgs[:0]
	for _, msg := range msgs {
		if seal.IsSealed(msg.Content) && (msg.Subject == nil || !strings.Contains(strings.ToLower(*msg.Subject), lq)) {
			continue
		}
		out = append(out, msg)
	}
	return m.openAll(out), nil
}

func (m *Messaging) Flag(ctx context.Context, actor model.Actor, messageID string) error {
	if messageID == "" {
		return apperr.Validation("messageId is required")
	}
	err := exec(ctx, m.cfg.StoreTimeout, "flag.set", func(ctx context.Context) error {
		return m.store.SetFlag(ctx, actor.UserID, messageID, m.now())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Message not found")
	}
	return err
}

// Unflag снимает метку; отсутствие метки не ошибка.
func (m *Messaging) Unflag(ctx context.Context, actor model.Actor, messageID string) error {
	if messageID == "" {
		return apperr.Validation("messageId is required")
	}
	return exec(ctx, m.cfg.StoreTimeout, "flag.delete", func(ctx context.Context) error {
		return m.store.DeleteFlag(ctx, actor.UserID, messageID)
	})
}

func (m *Messaging) Archive(ctx context.Context, actor model.Actor, threadID string) error {
	if threadID == "" {
		return apperr.Validation("threadId is required")
	}
	err := exec(ctx, m.cfg.StoreTimeout, "archive.set", func(ctx context.Context) error {
		return m.store.SetArchive(ctx, actor.UserID, threadID, m.now())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Thread not found")
	}
	return err
}

func (m *Messaging) Unarchive(ctx context.Context, actor model.Actor, threadID string) error {
	if threadID == "" {
		return apperr.Validation("threadId is required")
	}
	return exec(ctx, m.cfg.StoreTimeout, "archive.delete", func(ctx context.Context) error {
		return m.store.DeleteArchive(ctx, actor.UserID, threadID)
	})
}

type AttachmentFile struct {
	Name   string
	Mime   string
	Base64 string
}

// Attach сохраняет вложения. Сначала проверяется весь пакет: один слишком
// большой файл отклоняет запрос до записи чего-либо.
func (m *Messaging) Attach(ctx context.Context, actor model.Actor, messageID string, files []AttachmentFile) ([]model.AttachmentInfo, error) {
	if messageID == "" || files == nil {
		return nil, apperr.Validation("messageId and files[] required")
	}
	msg, err := m.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.FromUserID != actor.UserID && msg.ToUserID != actor.UserID {
		return nil, apperr.Forbidden("Forbidden")
	}

	decoded := make([][]byte, len(files))
	for i, f := range files {
		if strings.TrimSpace(f.Name) == "" {
			return nil, apperr.Validation("Each file needs a name")
		}
		data, err := base64.StdEncoding.DecodeString(f.Base64)
		if err != nil {
			return nil, apperr.Validation("Invalid base64 in " + f.Name)
		}
		if int64(len(data)) > m.cfg.MaxAttachmentBytes {
			return nil, apperr.Validation("File too large")
		}
		decoded[i] = data
	}

	saved := make([]model.AttachmentInfo, 0, len(files))
	for i, f := range files {
		at := m.now()
		filename, path, err := m.files.Save(msg.ID, f.Name, decoded[i], at)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		a := &model.Attachment{
			ID:         m.newID(),
			MessageID:  msg.ID,
			Filename:   filename,
			Mime:       f.Mime,
			SizeBytes:  int64(len(decoded[i])),
			Path:       path,
			UploadedAt: at,
		}
		if err := exec(ctx, m.cfg.StoreTimeout, "attachment.create", func(ctx context.Context) error {
			return m.store.CreateAttachment(ctx, a)
		}); err != nil {
			return nil, err
		}
		saved = append(saved, model.AttachmentInfo{Filename: a.Filename, Mime: a.Mime, Size: a.SizeBytes})
	}
	return saved, nil
}

// Typing пересылает индикатор набора остальным участникам треда. Ничего не сохраняется.
func (m *Messaging) Typing(ctx context.Context, actor model.Actor, threadID string, typing bool) error {
	t, err := m.participantThread(ctx, actor, threadID)
	if err != nil {
		return err
	}
	ev := Event{Type: EventTyping, Payload: TypingPayload{ThreadID: t.ID, UserID: actor.UserID, Typing: typing}}
	for _, p := range t.Participants {
		if p.UserID != actor.UserID {
			m.notify.ToUser(p.UserID, ev)
		}
	}
	return nil
}

// audit пишет запись журнала; ошибка только логируется.
func (m *Messaging) audit(ctx context.Context, e model.AuditEntry) {
	e.ID = m.newID()
	e.CreatedAt = m.now()
	if err := exec(ctx, m.cfg.StoreTimeout, "audit", func(ctx context.Context) error {
		return m.store.Audit(ctx, &e)
	}); err != nil {
		logger.Warnf("audit %s actor=%s: %v", e.Action, e.ActorUserID, err)
	}
}
