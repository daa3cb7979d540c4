// Package logger — логирование с префиксом сервиса и асинхронной записью:
// вызовы не блокируют обработку запросов и realtime-каналы.
// Уровень задаётся LOG_LEVEL (debug|info|warn) или SetLevel из конфига.
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

const asyncBufferSize = 8192

var (
	prefix   string
	logLevel = levelInfo
	ch       chan string
	flushCh  chan chan struct{}
	once     sync.Once
	out      = log.New(os.Stderr, "", log.LstdFlags)
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
)

func parseLevel(s string) level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return levelDebug
	case "warn", "warning", "error":
		return levelWarn
	default:
		return levelInfo
	}
}

func initWorker() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logLevel = parseLevel(v)
	}
	ch = make(chan string, asyncBufferSize)
	flushCh = make(chan chan struct{})
	go func() {
		for {
			select {
			case msg := <-ch:
				out.Print(msg)
			case done := <-flushCh:
				for {
					select {
					case msg := <-ch:
						out.Print(msg)
						continue
					default:
					}
					break
				}
				close(done)
			}
		}
	}()
}

func enqueue(msg string) {
	once.Do(initWorker)
	select {
	case ch <- msg:
	default:
		// буфер полон — лог теряется
	}
}

// SetPrefix задаёт префикс для всех последующих логов (например "api", "auth").
func SetPrefix(p string) {
	prefix = p
}

// SetLevel переопределяет уровень из LOG_LEVEL (значение из YAML-конфига).
func SetLevel(s string) {
	once.Do(initWorker)
	if s != "" {
		logLevel = parseLevel(s)
	}
}

// SetOutput перенаправляет вывод (CLI пишет логи в файл, чтобы не мешать вводу).
func SetOutput(w io.Writer) {
	out.SetOutput(w)
}

// Flush дожидается записи накопленных сообщений. Вызывается перед выходом из процесса.
func Flush() {
	once.Do(initWorker)
	done := make(chan struct{})
	select {
	case flushCh <- done:
		<-done
	case <-time.After(time.Second):
	}
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Debug пишет только при уровне debug.
func Debug(v ...any) {
	if logLevel > levelDebug {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprint(v...))
}

func Debugf(format string, v ...any) {
	if logLevel > levelDebug {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
}

// Info пишет в log с префиксом (асинхронно).
func Info(v ...any) {
	if logLevel > levelInfo {
		return
	}
	enqueue(tag() + fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	if logLevel > levelInfo {
		return
	}
	enqueue(tag() + fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	enqueue(tag() + "WARN: " + fmt.Sprintf(format, v...))
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// На уровне info — только вызовы дольше 100ms, на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if logLevel == levelDebug || (logLevel == levelInfo && elapsed >= 100*time.Millisecond) {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
