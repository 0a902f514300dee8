package source

import (
	"context"
	"sync"
	"time"
)

type managed struct {
	mu      sync.Mutex
	reader  Reader
	nextSeq int64
	closed  bool
	now     func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Wrap turns a Reader into a Source. Frames are numbered from 0. Once closed, the reader is never
// touched again and Next returns ErrClosed. Close waits for an in-flight Next to finish.
func Wrap(reader Reader) Source {
	return WrapWithClock(reader, time.Now)
}

// WrapWithClock is like Wrap but timestamps frames using `now`.
func WrapWithClock(reader Reader, now func() time.Time) Source {
	return &managed{reader: reader, now: now}
}

func (m *managed) Next(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Frame{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	img, err := m.reader.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	if img == nil || img.Bounds().Empty() {
		return Frame{}, NewReadError(nil)
	}

	frame := Frame{Image: img, Seq: m.nextSeq, Timestamp: m.now()}
	m.nextSeq++
	return frame, nil
}

func (m *managed) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed = true
		m.closeErr = m.reader.Close(ctx)
	})
	return m.closeErr
}
