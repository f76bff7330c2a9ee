// Package audit records who did what through the API. Entries are written
// asynchronously so that auditing never delays or fails a request.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/logger"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
)

type WriterConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// Writer is a bounded queue in front of the audit repository.
type Writer struct {
	repo    repository.AuditRepository
	cfg     WriterConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	queue   chan *model.AuditLog
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewWriter(repo repository.AuditRepository, cfg WriterConfig, log *logger.Logger, m *metrics.Metrics) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{
		repo:    repo,
		cfg:     cfg,
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		queue:   make(chan *model.AuditLog, cfg.QueueSize),
	}
}

// Start launches the workers. Values of ctx are passed to the repository
// but its cancellation is not: queued entries are still written until
// Close returns.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.run(base)
	}
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()
	for entry := range w.queue {
		w.metrics.SetAuditQueueDepth(len(w.queue))
		w.write(ctx, entry)
	}
}

func (w *Writer) write(ctx context.Context, entry *model.AuditLog) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	defer cancel()

	if err := w.repo.Create(ctx, entry); err != nil {
		w.metrics.ObserveAudit(false)
		w.logger.Error(err, "Failed to write audit entry",
			"action", entry.Action,
			"resource_type", entry.ResourceType,
			"request_id", entry.RequestID)
		return
	}
	w.metrics.ObserveAudit(true)
}

// Record enqueues entry without blocking. It reports false when the entry
// was dropped because the queue is full or the writer is closed.
func (w *Writer) Record(entry *model.AuditLog) bool {
	if entry == nil {
		return false
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = w.now()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.drop(entry, "writer closed")
		return false
	}
	select {
	case w.queue <- entry:
		w.metrics.SetAuditQueueDepth(len(w.queue))
		return true
	default:
		w.drop(entry, "queue full")
		return false
	}
}

func (w *Writer) drop(entry *model.AuditLog, reason string) {
	w.metrics.AuditDrop()
	w.logger.Warn("Audit entry dropped",
		"reason", reason,
		"action", entry.Action,
		"resource_type", entry.ResourceType,
		"request_id", entry.RequestID)
}

// Close stops accepting entries and waits until the queue is drained.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	started := w.started
	w.mu.Unlock()

	if !started {
		// Nobody will consume the queue; write what is left inline.
		ctx := context.Background()
		for entry := range w.queue {
			w.write(ctx, entry)
		}
		return nil
	}
	w.wg.Wait()
	return nil
}
