// Package attachments сохраняет вложения сообщений на диск.
package attachments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dir пишет файлы в один каталог; имена строятся так, что выйти за его пределы нельзя.
type Dir struct {
	UploadDir string
}

func New(uploadDir string) *Dir {
	return &Dir{UploadDir: uploadDir}
}

// StoredName — "<messageId>_<unix ms>_<name>" с заменой всего, кроме [A-Za-z0-9_.-], на '_'.
func StoredName(messageID, name string, at time.Time) string {
	raw := fmt.Sprintf("%s_%d_%s", messageID, at.UnixMilli(), name)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// maxNameAttempts — сколько суффиксов -1, -2, ... пробуется при совпадении имён.
const maxNameAttempts = 100

// Save записывает data и возвращает имя файла и полный путь.
// Существующий файл никогда не перезаписывается: при совпадении имени
// (тот же ms или одинаковое имя после очистки) к имени добавляется -N перед расширением.
// При ошибке записи частично созданный файл удаляется.
func (d *Dir) Save(messageID, name string, data []byte, at time.Time) (string, string, error) {
	if err := os.MkdirAll(d.UploadDir, 0o755); err != nil {
		return "", "", fmt.Errorf("attachments: create upload dir: %w", err)
	}
	base := StoredName(messageID, name, at)
	filename, dstPath, dst, err := d.create(base)
	if err != nil {
		return "", "", err
	}
	if _, err := dst.Write(data); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", "", fmt.Errorf("attachments: write: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", "", fmt.Errorf("attachments: close: %w", err)
	}
	return filename, dstPath, nil
}

func (d *Dir) create(base string) (string, string, *os.File, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 0; n < maxNameAttempts; n++ {
		filename := base
		if n > 0 {
			filename = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		dstPath := filepath.Join(d.UploadDir, filename)
		f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return filename, dstPath, f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", nil, fmt.Errorf("attachments: create: %w", err)
		}
	}
	return "", "", nil, fmt.Errorf("attachments: create %s: %d names taken", base, maxNameAttempts)
}
