package worker

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink-health/telehealth/pkg/queue"
	"github.com/vitalink-health/telehealth/pkg/storage"
)

const (
	// DefaultBatchSize caps how many events one archive object holds.
	DefaultBatchSize = 200
	// DefaultFlushInterval bounds how long a partial batch may wait.
	DefaultFlushInterval = 30 * time.Second
)

// ArchiveProcessor drains the audit queue and ships events to S3 as
// newline-delimited JSON, one object per batch. Archival is best effort
// downstream of the API: a failed upload re-enqueues the batch through
// the queue's retry/DLQ path and never surfaces to callers.
type ArchiveProcessor struct {
	s3            *storage.S3
	queue         *queue.Queue
	logger        *zap.Logger
	batchSize     int
	flushInterval time.Duration
}

// NewArchiveProcessor creates an audit archive processor. Zero batchSize
// or flushInterval fall back to the defaults.
func NewArchiveProcessor(s3 *storage.S3, q *queue.Queue, batchSize int, flushInterval time.Duration, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &ArchiveProcessor{s3: s3, queue: q, logger: logger, batchSize: batchSize, flushInterval: flushInterval}
}

// Run starts the worker loop: dequeue with a bounded wait, accumulate,
// flush when the batch fills or the oldest buffered event has waited a
// full interval. Cancellation flushes whatever is buffered before
// returning so shutdown loses nothing already dequeued.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	var pending []*queue.Job
	var deadline time.Time
	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background(), pending)
			p.logger.Info("audit archiver stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx, p.flushInterval)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("dequeue error", zap.Error(err))
				time.Sleep(queue.RetryBackoff)
			}
			continue
		}
		if job != nil {
			if job.Type != queue.JobTypeAuditArchive {
				p.logger.Warn("dropping unknown job type", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
				continue
			}
			if len(pending) == 0 {
				deadline = time.Now().Add(p.flushInterval)
			}
			pending = append(pending, job)
		}
		if len(pending) == 0 {
			continue
		}
		if len(pending) >= p.batchSize || !time.Now().Before(deadline) {
			p.flush(ctx, pending)
			pending = nil
		}
	}
}

// flush uploads one JSONL object for the buffered jobs. On failure every
// job goes back through the queue's retry path.
func (p *ArchiveProcessor) flush(ctx context.Context, jobs []*queue.Job) {
	if len(jobs) == 0 {
		return
	}
	key := storage.AuditKey(time.Now(), uuid.New().String())
	if _, err := p.s3.UploadAuditArchive(ctx, key, buildArchive(jobs)); err != nil {
		p.logger.Error("audit archive upload failed", zap.Error(err), zap.Int("events", len(jobs)))
		for _, job := range jobs {
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr), zap.String("job_id", job.ID))
			}
		}
		return
	}
	p.logger.Info("audit archive written", zap.String("key", key), zap.Int("events", len(jobs)))
}

// buildArchive renders jobs as newline-delimited JSON, one event per line.
func buildArchive(jobs []*queue.Job) []byte {
	var buf bytes.Buffer
	for _, job := range jobs {
		buf.Write(bytes.TrimSpace(job.Payload))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
