// Package deletion implements the single-consumer background worker that
// removes a chat's rendered artifacts, local dialog log, and metadata rows
// in a fixed cascade order.
package deletion

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aizoomdoc/docpipeline/pkg/store"
)

// DefaultDrainTimeout is the soft deadline the worker waits for the queue
// to drain before cancelling in-flight work on Stop.
const DefaultDrainTimeout = 10 * time.Second

// Worker drains chat IDs from an internal FIFO, deleting each chat's
// artifacts, local log file, and metadata rows in a fixed cascade order.
type Worker struct {
	metadata store.MetadataStore
	objects  store.ObjectStore
	logDir   string
	logger   *slog.Logger

	queue   chan string
	pending atomic.Int64
	done    chan struct{}
	stop    context.CancelFunc
}

// New constructs a Worker. Call Start to begin consuming.
func New(metadata store.MetadataStore, objects store.ObjectStore, logDir string, queueSize int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Worker{
		metadata: metadata,
		objects:  objects,
		logDir:   logDir,
		logger:   logger,
		queue:    make(chan string, queueSize),
	}
}

// Enqueue pushes chatID onto the deletion queue. Producers only ever push;
// only the worker goroutine consumes.
func (w *Worker) Enqueue(chatID string) {
	w.pending.Add(1)
	w.queue <- chatID
}

// Start spawns the consumer goroutine. Idempotent: calling Start twice
// without an intervening Stop is a no-op.
func (w *Worker) Start(ctx context.Context) {
	if w.stop != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	w.done = make(chan struct{})
	go w.run(runCtx)
}

// Stop waits up to DefaultDrainTimeout for the queue to drain, then cancels
// any in-flight cascade and returns once the worker goroutine has exited.
func (w *Worker) Stop() {
	if w.stop == nil {
		return
	}
	deadline := time.NewTimer(DefaultDrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
drain:
	for w.pending.Load() > 0 {
		select {
		case <-deadline.C:
			break drain
		case <-tick.C:
		}
	}
	w.stop()
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case chatID := <-w.queue:
			w.processDeletion(ctx, chatID)
			w.pending.Add(-1)
		}
	}
}

// processDeletion runs the fixed cascade: list+delete object-store
// artifacts, delete the local log file, then delete metadata rows in the
// order chat_images -> chat_messages -> chats. Per-item failures are
// logged and do not abort the rest of the cascade.
func (w *Worker) processDeletion(ctx context.Context, chatID string) {
	w.deleteStorageArtifacts(ctx, chatID)
	w.deleteLocalLog(chatID)

	if err := w.metadata.DeleteChatCascade(ctx, chatID); err != nil {
		w.logger.Error("deletion: metadata cascade failed", "chat_id", chatID, "error", err)
	}
}

func (w *Worker) deleteStorageArtifacts(ctx context.Context, chatID string) {
	files, err := w.metadata.GetChatStorageFiles(ctx, chatID)
	if err != nil {
		w.logger.Error("deletion: list storage files failed", "chat_id", chatID, "error", err)
		return
	}
	for _, key := range files {
		if err := w.objects.Delete(ctx, key); err != nil {
			w.logger.Warn("deletion: object delete failed", "chat_id", chatID, "key", key, "error", err)
			continue
		}
	}
}

func (w *Worker) deleteLocalLog(chatID string) {
	path := logPath(w.logDir, chatID)
	if err := removeIfExists(path); err != nil {
		w.logger.Warn("deletion: log delete failed", "chat_id", chatID, "path", path, "error", err)
	}
}
