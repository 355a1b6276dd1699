package seal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef-school"

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	require.True(t, s.Enabled())

	for _, plain := range []string{"hi", "", "Оценка за контрольную: 5", strings.Repeat("x", 4096)} {
		sealed, err := s.Seal(plain, true)
		require.NoError(t, err)
		assert.True(t, IsSealed(sealed))
		assert.NotContains(t, sealed, "Оценка")
		assert.Equal(t, plain, s.Open(sealed))
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	a, err := s.Seal("same", true)
	require.NoError(t, err)
	b, err := s.Seal("same", true)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealPassThrough(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	out, err := s.Seal("plain", false)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	disabled, err := New("short")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	out, err = disabled.Seal("plain", true)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestOpenRedactsWithoutKey(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	sealed, err := s.Seal("secret", true)
	require.NoError(t, err)

	noKey, err := New("")
	require.NoError(t, err)
	assert.Equal(t, Redacted, noKey.Open(sealed))
	assert.Equal(t, "not sealed", noKey.Open("not sealed"))
}

func TestOpenRedactsOnWrongKeyOrTamper(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	sealed, err := s.Seal("secret", true)
	require.NoError(t, err)

	other, err := New("another-key-of-enough-length")
	require.NoError(t, err)
	assert.Equal(t, Redacted, other.Open(sealed))

	parts := strings.Split(sealed, ":")
	require.Len(t, parts, 4)
	parts[3] = "AAAA" + parts[3][4:]
	assert.Equal(t, Redacted, s.Open(strings.Join(parts, ":")))
}

func TestPlainTextWithPrefixIsNotAnEnvelope(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	for _, plain := range []string{"enc: see attached notes", "enc:garbage", "enc:a:b:c", "enc:AAAA:AAAA:AAAA"} {
		assert.False(t, IsSealed(plain), plain)
		assert.Equal(t, plain, s.Open(plain))
	}
	noKey, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "enc: see attached notes", noKey.Open("enc: see attached notes"))
}
