// Package diag is the diagnostic sink shared by builders and pipelines.
//
// Recoverable constraint violations are reported as warnings and the caller
// continues with a best-effort result. Structural impossibilities are fatal:
// they are logged and returned as errors wrapping ErrFatal.
package diag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var ErrFatal = errors.New("fatal")

// Sink receives diagnostics. Implementations must be safe for concurrent use.
type Sink interface {
	Message(msg string, args ...any)
	Warning(msg string, args ...any)
	// WarnOnce emits the warning only the first time key is seen.
	WarnOnce(key, msg string, args ...any)
	// Fatal records err and returns it unchanged for propagation.
	Fatal(err error) error
}

// Fatalf builds an error that wraps ErrFatal and the optional sentinel.
func Fatalf(sentinel error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if sentinel == nil {
		return fmt.Errorf("%w: %s", ErrFatal, msg)
	}
	return fmt.Errorf("%w: %w: %s", ErrFatal, sentinel, msg)
}

// Logger writes diagnostics as structured slog records.
type Logger struct {
	log  *slog.Logger
	seen sync.Map
}

func New(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

// NewText builds a text-handler logger at the given level.
func NewText(w io.Writer, level slog.Level) *Logger {
	return New(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func (l *Logger) Message(msg string, args ...any) {
	l.log.Info(msg, args...)
}

func (l *Logger) Warning(msg string, args ...any) {
	l.log.Warn(msg, args...)
}

func (l *Logger) WarnOnce(key, msg string, args ...any) {
	if _, loaded := l.seen.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	l.log.Warn(msg, args...)
}

func (l *Logger) Fatal(err error) error {
	if err == nil {
		return nil
	}
	l.log.Log(context.Background(), slog.LevelError, "fatal", "error", err)
	return err
}

type discard struct{}

func (discard) Message(string, ...any)          {}
func (discard) Warning(string, ...any)          {}
func (discard) WarnOnce(string, string, ...any) {}
func (discard) Fatal(err error) error           { return err }

// Discard drops every diagnostic.
var Discard Sink = discard{}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Recorder keeps diagnostics in memory. Tests use it to assert on the
// lenient-fallback path.
type Recorder struct {
	mu       sync.Mutex
	Messages []string
	Warnings []string
	Fatals   []error
	seen     map[string]struct{}
}

func (r *Recorder) Message(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, msg)
}

func (r *Recorder) Warning(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, msg)
}

func (r *Recorder) WarnOnce(key, msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	r.Warnings = append(r.Warnings, msg)
}

func (r *Recorder) Fatal(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fatals = append(r.Fatals, err)
	return err
}

// WarningCount is safe to call while other goroutines record.
func (r *Recorder) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Warnings)
}
