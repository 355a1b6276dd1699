package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/storage"
)

func seedThread(t *testing.T, s *Store, id string, at time.Time, users ...string) {
	t.Helper()
	th := &model.Thread{ID: id, Subject: "s-" + id, LastMessageAt: at}
	for _, u := range users {
		th.Participants = append(th.Participants, model.Participant{UserID: u, Role: "student"})
	}
	require.NoError(t, s.CreateThread(context.Background(), th))
}

func TestListThreadsOrderAndArchive(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	seedThread(t, s, "t1", base, "a", "b")
	seedThread(t, s, "t2", base.Add(time.Hour), "a", "c")
	seedThread(t, s, "t3", base.Add(2*time.Hour), "b", "c")

	require.NoError(t, s.SetArchive(ctx, "a", "t1", base))
	list, err := s.ListThreads(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].ID)
	assert.Equal(t, "t1", list[1].ID)
	assert.True(t, list[1].Archived)
	assert.False(t, list[0].Archived)

	require.NoError(t, s.DeleteArchive(ctx, "a", "t1"))
	require.NoError(t, s.DeleteArchive(ctx, "a", "t1"))
	list, err = s.ListThreads(ctx, "a")
	require.NoError(t, err)
	assert.False(t, list[1].Archived)

	assert.ErrorIs(t, s.SetArchive(ctx, "a", "missing", base), storage.ErrNotFound)
}

func TestFindDirectThreadIgnoresGroups(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()
	seedThread(t, s, "group", base.Add(time.Hour), "a", "b", "c")
	seedThread(t, s, "old", base, "a", "b")
	seedThread(t, s, "new", base.Add(time.Minute), "b", "a")

	id, err := s.FindDirectThread(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "new", id)

	_, err = s.FindDirectThread(ctx, "a", "z")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkReadFirstTimestampWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedThread(t, s, "t", time.Now(), "a", "b")
	require.NoError(t, s.CreateMessage(ctx, &model.Message{ID: "m", ThreadID: "t", FromUserID: "a", ToUserID: "b", Content: "hi", CreatedAt: time.Now()}))

	first := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	changed, err := s.MarkRead(ctx, "m", first)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.MarkRead(ctx, "m", first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	m, err := s.GetMessage(ctx, "m")
	require.NoError(t, err)
	require.NotNil(t, m.ReadAt)
	assert.True(t, m.ReadAt.Equal(first))

	_, err = s.MarkRead(ctx, "nope", first)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSearchScopesToParticipantThreads(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	seedThread(t, s, "mine", now, "a", "b")
	seedThread(t, s, "other", now, "c", "d")
	subj := "Homework"
	require.NoError(t, s.CreateMessage(ctx, &model.Message{ID: "1", ThreadID: "mine", FromUserID: "b", ToUserID: "a", Subject: &subj, Content: "see attached", CreatedAt: now}))
	require.NoError(t, s.CreateMessage(ctx, &model.Message{ID: "2", ThreadID: "mine", FromUserID: "a", ToUserID: "b", Content: "my HOMEWORK is done", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.CreateMessage(ctx, &model.Message{ID: "3", ThreadID: "other", FromUserID: "c", ToUserID: "d", Content: "homework", CreatedAt: now}))

	res, err := s.Search(ctx, "a", "homework", 200)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "2", res[0].ID)
	assert.Equal(t, "1", res[1].ID)

	res, err = s.Search(ctx, "a", "homework", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestThreadMessagesAndInboxOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	seedThread(t, s, "t", now, "a", "b")
	for i, id := range []string{"x", "y", "z"} {
		require.NoError(t, s.CreateMessage(ctx, &model.Message{ID: id, ThreadID: "t", FromUserID: "b", ToUserID: "a", Content: id, CreatedAt: now.Add(time.Duration(i) * time.Second)}))
	}
	msgs, err := s.ThreadMessages(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	inbox, err := s.Inbox(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "y", "x"}, []string{inbox[0].ID, inbox[1].ID, inbox[2].ID})

	inbox, err = s.Inbox(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestFlags(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedThread(t, s, "t", time.Now(), "a", "b")
	require.NoError(t, s.CreateMessage(ctx, &model.Message{ID: "m", ThreadID: "t", FromUserID: "a", ToUserID: "b", Content: "c", CreatedAt: time.Now()}))

	require.NoError(t, s.SetFlag(ctx, "b", "m", time.Now()))
	require.NoError(t, s.SetFlag(ctx, "b", "m", time.Now()))
	assert.True(t, s.IsFlagged("b", "m"))
	assert.False(t, s.IsFlagged("a", "m"))
	require.NoError(t, s.DeleteFlag(ctx, "b", "m"))
	assert.False(t, s.IsFlagged("b", "m"))
	assert.ErrorIs(t, s.SetFlag(ctx, "b", "missing", time.Now()), storage.ErrNotFound)
}

func TestPresence(t *testing.T) {
	ctx := context.Background()
	p := NewPresence()
	class := "7A"
	now := time.Now()
	require.NoError(t, p.Upsert(ctx, &model.PresenceRecord{UserID: "s2", Role: "student", ClassID: &class, IsOnline: true, LastSeen: now}))
	require.NoError(t, p.Upsert(ctx, &model.PresenceRecord{UserID: "s1", Role: "student", ClassID: &class, IsOnline: true, LastSeen: now}))
	require.NoError(t, p.Upsert(ctx, &model.PresenceRecord{UserID: "t1", Role: "teacher", IsOnline: true, LastSeen: now}))

	all, err := p.ListActive(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"s1", "s2", "t1"}, []string{all[0].UserID, all[1].UserID, all[2].UserID})

	byClass, err := p.ListActive(ctx, "", "7A")
	require.NoError(t, err)
	assert.Len(t, byClass, 2)

	found, err := p.SetOffline(ctx, "s1", now)
	require.NoError(t, err)
	assert.True(t, found)
	found, err = p.SetOffline(ctx, "ghost", now)
	require.NoError(t, err)
	assert.False(t, found)

	students, err := p.ListActive(ctx, "student", "")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "s2", students[0].UserID)
}
