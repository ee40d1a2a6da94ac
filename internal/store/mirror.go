package store

import (
	"context"
	"sync"
	"time"

	"github.com/ingelean/inge-go/internal/chat"
	"github.com/ingelean/inge-go/internal/logger"
)

// Mirror decouples remote persistence from the transcript-update path.
// Writes are queued and drained on a single goroutine; failures are logged
// and swallowed so durability problems never touch the live session.
type Mirror struct {
	store   Store
	tasks   chan func(context.Context)
	wg      sync.WaitGroup
	timeout time.Duration

	closeOnce sync.Once
}

// defaultWriteTimeout bounds each mirrored write.
const defaultWriteTimeout = 10 * time.Second

// NewMirror starts the drain goroutine. A nil store yields a disabled
// mirror whose enqueue methods are no-ops; non-positive queue sizes and
// timeouts fall back to defaults.
func NewMirror(s Store, queueSize int, writeTimeout time.Duration) *Mirror {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	m := &Mirror{store: s, timeout: writeTimeout}
	if s == nil {
		return m
	}
	m.tasks = make(chan func(context.Context), queueSize)
	m.wg.Add(1)
	go m.drain()
	return m
}

func (m *Mirror) drain() {
	defer m.wg.Done()
	for task := range m.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		task(ctx)
		cancel()
	}
}

func (m *Mirror) enqueue(task func(context.Context)) {
	if m.tasks == nil {
		return
	}
	select {
	case m.tasks <- task:
	default:
		logger.L.Warn("mirror queue full, dropping write")
	}
}

// SaveMessage mirrors one transcript message.
func (m *Mirror) SaveMessage(conversationID string, msg chat.Message) {
	m.enqueue(func(ctx context.Context) {
		if err := m.store.SaveMessage(ctx, conversationID, msg); err != nil {
			logger.L.Error("failed to mirror message", "conversation", conversationID, "error", err)
		}
	})
}

// UpsertMetrics mirrors the metrics snapshot after an exchange.
func (m *Mirror) UpsertMetrics(conversationID string, metrics chat.Metrics, updatedAt time.Time) {
	m.enqueue(func(ctx context.Context) {
		if err := m.store.UpsertMetrics(ctx, conversationID, metrics, updatedAt); err != nil {
			logger.L.Error("failed to mirror metrics", "conversation", conversationID, "error", err)
		}
	})
}

// SaveArchive mirrors a reset snapshot.
func (m *Mirror) SaveArchive(a chat.Archive) {
	m.enqueue(func(ctx context.Context) {
		if err := m.store.SaveArchive(ctx, a); err != nil {
			logger.L.Error("failed to mirror archive", "conversation", a.ID, "error", err)
		}
	})
}

// Close stops accepting writes and waits for the queue to drain.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() {
		if m.tasks != nil {
			close(m.tasks)
			m.wg.Wait()
		}
	})
}
