package attachments

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredNameSanitises(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "m1_1700000000123_report.pdf", StoredName("m1", "report.pdf", at))
	assert.Equal(t, "m1_1700000000123_.._.._etc_passwd", StoredName("m1", "../../etc/passwd", at))
	assert.Equal(t, "m1_1700000000123_______1_.txt", StoredName("m1", "отчёт 1 .txt", at))
	assert.Regexp(t, `^[A-Za-z0-9_.-]+$`, StoredName("m1", "a b;c\"d.png", at))
}

func TestSaveWritesInsideDir(t *testing.T) {
	dir := t.TempDir()
	d := New(filepath.Join(dir, "nested"))
	name, path, err := d.Save("m1", "../escape.txt", []byte("hello"), time.UnixMilli(5))
	require.NoError(t, err)
	assert.Equal(t, "m1_5_.._escape.txt", name)
	assert.Equal(t, filepath.Join(dir, "nested", name), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSaveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	d := New(dir)
	at := time.UnixMilli(7)

	first, firstPath, err := d.Save("m1", "photo.jpg", []byte("first file contents"), at)
	require.NoError(t, err)
	second, secondPath, err := d.Save("m1", "photo.jpg", []byte("second"), at)
	require.NoError(t, err)
	// "a b.txt" и "a_b.txt" после очистки дают одно имя
	spaced, _, err := d.Save("m1", "a b.txt", []byte("x"), at)
	require.NoError(t, err)
	underscored, _, err := d.Save("m1", "a_b.txt", []byte("y"), at)
	require.NoError(t, err)

	assert.Equal(t, "m1_7_photo.jpg", first)
	assert.Equal(t, "m1_7_photo-1.jpg", second)
	assert.Equal(t, "m1_7_a_b.txt", spaced)
	assert.Equal(t, "m1_7_a_b-1.txt", underscored)

	data, err := os.ReadFile(firstPath)
	require.NoError(t, err)
	assert.Equal(t, "first file contents", string(data))
	data, err = os.ReadFile(secondPath)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
