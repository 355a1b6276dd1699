package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	rec, ok := decode("u1", map[string]string{
		"role":      "student",
		"class_id":  "7A",
		"is_online": "1",
		"last_seen": ts.Format(time.RFC3339Nano),
	})
	require.True(t, ok)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "student", rec.Role)
	require.NotNil(t, rec.ClassID)
	assert.Equal(t, "7A", *rec.ClassID)
	assert.True(t, rec.IsOnline)
	assert.True(t, rec.LastSeen.Equal(ts))

	rec, ok = decode("u2", map[string]string{"role": "teacher", "is_online": "0"})
	require.True(t, ok)
	assert.Nil(t, rec.ClassID)
	assert.False(t, rec.IsOnline)

	_, ok = decode("gone", map[string]string{})
	assert.False(t, ok)
}
