package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/schoolmsg/internal/model"
)

// newContainerPresence поднимает redis:7-alpine; без Docker или в -short режиме тест пропускается.
func newContainerPresence(t *testing.T) *Presence {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container is skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	p, err := New(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func userIDs(recs []model.PresenceRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.UserID)
	}
	return out
}

func TestPresenceAgainstRedis(t *testing.T) {
	p := newContainerPresence(t)
	ctx := context.Background()
	require.NoError(t, p.Ping(ctx))

	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	class := func(s string) *string { return &s }
	for _, rec := range []model.PresenceRecord{
		{UserID: "s2", Role: "student", ClassID: class("7A"), IsOnline: true, LastSeen: at},
		{UserID: "s1", Role: "student", ClassID: class("7B"), IsOnline: true, LastSeen: at},
		{UserID: "t1", Role: "teacher", IsOnline: true, LastSeen: at},
		{UserID: "p1", Role: "parent", ClassID: class("7A"), IsOnline: false, LastSeen: at},
	} {
		require.NoError(t, p.Upsert(ctx, &rec))
	}
	// участник множества без хеша пропускается
	require.NoError(t, p.cli.SAdd(ctx, onlineSet, "ghost").Err())

	all, err := p.ListActive(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "t1"}, userIDs(all))
	require.NotNil(t, all[1].ClassID)
	assert.Equal(t, "7A", *all[1].ClassID)
	assert.True(t, all[1].LastSeen.Equal(at))

	students, err := p.ListActive(ctx, "student", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, userIDs(students))
	sevenA, err := p.ListActive(ctx, "", "7A")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, userIDs(sevenA))

	found, err := p.SetOffline(ctx, "nobody", at)
	require.NoError(t, err)
	assert.False(t, found)
	found, err = p.SetOffline(ctx, "s2", at.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, found)
	isMember, err := p.cli.SIsMember(ctx, onlineSet, "s2").Result()
	require.NoError(t, err)
	assert.False(t, isMember)

	// повторный online переводит запись обратно
	require.NoError(t, p.Upsert(ctx, &model.PresenceRecord{UserID: "s2", Role: "student", IsOnline: true, LastSeen: at.Add(2 * time.Minute)}))
	all, err = p.ListActive(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "t1"}, userIDs(all))
	assert.Nil(t, all[1].ClassID)

	require.NoError(t, p.ResetOnline(ctx))
	all, err = p.ListActive(ctx, "", "")
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
	online, err := p.cli.HGet(ctx, keyPrefix+"t1", "is_online").Result()
	require.NoError(t, err)
	assert.Equal(t, "0", online)
}
