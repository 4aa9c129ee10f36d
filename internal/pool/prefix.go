package pool

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
)

// outputKey carries the task's attributed writer through context.
type outputKey struct{}

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

// Output returns the attributed output stream for the current task. Outside a
// task it falls back to os.Stdout.
func Output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(outputKey{}).(io.Writer); ok {
		return w
	}
	return os.Stdout
}

// PrefixWriter prepends a fixed prefix to every line written through it, so
// interleaved output from concurrent tasks stays attributable. Writes are
// line-buffered: a partial line is held until its newline arrives or Flush is
// called. Blank lines are dropped.
type PrefixWriter struct {
	mu     sync.Mutex
	dst    io.Writer
	prefix string
	buf    bytes.Buffer
}

// NewPrefixWriter creates a PrefixWriter around dst.
func NewPrefixWriter(dst io.Writer, prefix string) *PrefixWriter {
	return &PrefixWriter{dst: dst, prefix: prefix}
}

func (w *PrefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line, push it back and wait for the rest.
			w.buf.WriteString(line)
			break
		}
		if err := w.writeLine(line[:len(line)-1]); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes out any buffered partial line.
func (w *PrefixWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}
	line := w.buf.String()
	w.buf.Reset()
	return w.writeLine(line)
}

func (w *PrefixWriter) writeLine(line string) error {
	if line == "" {
		return nil
	}
	_, err := io.WriteString(w.dst, w.prefix+line+"\n")
	return err
}
