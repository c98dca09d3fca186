// Package logging provides per-execution log capture. A process-wide tee is
// installed once on the default slog handler; executions bind a buffer into
// their context and everything logged with that context lands both on the
// original stream and in the execution's buffer. Concurrent executions never
// see each other's output.
package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

type bufferKey struct{}

// Buffer accumulates one execution's captured output. Safe for concurrent
// writers (an execution may log from helper goroutines it spawns).
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer

	handler slog.Handler
}

// NewBuffer creates an empty capture buffer.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.handler = slog.NewTextHandler(writerFunc(b.write), &slog.HandlerOptions{Level: slog.LevelDebug})
	return b
}

func (b *Buffer) write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the captured output so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// WithBuffer binds a fresh capture buffer to the context and returns both.
func WithBuffer(ctx context.Context) (context.Context, *Buffer) {
	buf := NewBuffer()
	return context.WithValue(ctx, bufferKey{}, buf), buf
}

// BufferFrom returns the buffer bound to the context, if any.
func BufferFrom(ctx context.Context) (*Buffer, bool) {
	buf, ok := ctx.Value(bufferKey{}).(*Buffer)
	return buf, ok
}

// Writer returns a writer that tees raw output to the original stream and,
// when the context carries a capture buffer, into that buffer as well.
// Originally-terminal output is never suppressed.
func Writer(ctx context.Context) io.Writer {
	if buf, ok := BufferFrom(ctx); ok {
		return io.MultiWriter(os.Stdout, writerFunc(buf.write))
	}
	return os.Stdout
}

var (
	installOnce sync.Once

	// initialDefault is the logger slog hands out before anyone calls
	// SetDefault. Its built-in handler writes through the log package,
	// whose mutex is held while the tee runs, so it must never sit under
	// the tee.
	initialDefault = slog.Default()
)

// Install wraps the current default slog handler with the capture tee. When
// the process never replaced the built-in default, a text handler on stderr
// is installed underneath instead of wrapping it; wrapping the built-in
// handler re-enters the log package and deadlocks on its mutex.
// Idempotent and safe to call from multiple goroutines; the first call wins.
func Install() {
	installOnce.Do(func() {
		inner := slog.Default().Handler()
		if slog.Default() == initialDefault {
			inner = slog.NewTextHandler(os.Stderr, nil)
		}
		slog.SetDefault(slog.New(&teeHandler{inner: inner}))
	})
}

// teeHandler forwards every record to the original handler and, when the
// record's context carries a capture buffer, also renders it into the buffer.
type teeHandler struct {
	inner slog.Handler
	attrs []slog.Attr
	group string
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// The buffer captures at Debug regardless of the terminal level, so a
	// record may be buffer-only.
	if _, ok := BufferFrom(ctx); ok {
		return true
	}
	return h.inner.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	if h.inner.Enabled(ctx, r.Level) {
		firstErr = h.inner.Handle(ctx, r.Clone())
	}
	if buf, ok := BufferFrom(ctx); ok {
		bh := buf.handler
		if len(h.attrs) > 0 {
			bh = bh.WithAttrs(h.attrs)
		}
		if h.group != "" {
			bh = bh.WithGroup(h.group)
		}
		if err := bh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{
		inner: h.inner.WithAttrs(attrs),
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
		group: h.group,
	}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{
		inner: h.inner.WithGroup(name),
		attrs: h.attrs,
		group: name,
	}
}

// Capture runs fn with a capture buffer bound to the context and returns the
// captured output alongside fn's error. This is the scoped log capture the
// orchestrator wraps around every execution.
func Capture(ctx context.Context, fn func(ctx context.Context) error) (string, error) {
	Install()
	ctx, buf := WithBuffer(ctx)
	err := fn(ctx)
	return buf.String(), err
}

// writerFunc adapts a function to io.Writer.
type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
