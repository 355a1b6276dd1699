// Package logger пишет логи с префиксом сервиса через асинхронный буфер,
// чтобы запись в stderr не тормозила обработку запросов и рассылку событий.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	asyncBufferSize = 8192
	slowThreshold   = 100 * time.Millisecond
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.RWMutex
	prefix   string
	minLevel = LevelInfo
	out      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

	ch   chan string
	once sync.Once
)

// ParseLevel переводит строку LOG_LEVEL в уровень; неизвестное значение — info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel задаёт минимальный уровень (config.Load вызывает его после чтения LOG_LEVEL).
func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// SetPrefix задаёт префикс для всех последующих логов (например "api").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetOutput перенаправляет вывод (в тестах — io.Discard).
func SetOutput(w io.Writer) {
	mu.Lock()
	out = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
	mu.Unlock()
}

func initWorker() {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		SetLevel(ParseLevel(lvl))
	}
	ch = make(chan string, asyncBufferSize)
	go func() {
		for msg := range ch {
			mu.RLock()
			l := out
			mu.RUnlock()
			l.Print(msg)
		}
	}()
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= minLevel
}

func enqueue(l Level, msg string) {
	once.Do(initWorker)
	if !enabled(l) {
		return
	}
	select {
	case ch <- tag(l) + msg:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

func tag(l Level) string {
	mu.RLock()
	p := prefix
	mu.RUnlock()
	var b strings.Builder
	if p != "" {
		b.WriteString("[" + p + "] ")
	}
	switch l {
	case LevelDebug:
		b.WriteString("DEBUG: ")
	case LevelWarn:
		b.WriteString("WARN: ")
	case LevelError:
		b.WriteString("ERROR: ")
	}
	return b.String()
}

func Debugf(format string, v ...any) { enqueue(LevelDebug, fmt.Sprintf(format, v...)) }

func Info(v ...any) { enqueue(LevelInfo, fmt.Sprint(v...)) }

func Infof(format string, v ...any) { enqueue(LevelInfo, fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { enqueue(LevelWarn, fmt.Sprintf(format, v...)) }

func Error(v ...any) { enqueue(LevelError, fmt.Sprint(v...)) }

func Errorf(format string, v ...any) { enqueue(LevelError, fmt.Sprintf(format, v...)) }

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// На уровне info пишутся только вызовы дольше 100ms, на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if elapsed < slowThreshold && !enabled(LevelDebug) {
		return
	}
	enqueue(LevelInfo, fmt.Sprintf("fn=%s duration_ms=%d", fn, elapsed.Milliseconds()))
}

// DeferLogDuration возвращает функцию для defer:
// defer logger.DeferLogDuration("thread.Create", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
