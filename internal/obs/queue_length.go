// Copyright 2025 James Ross
package obs

import (
	"context"
	"time"

	"github.com/lumensparkxy/barcode-pipeline/internal/config"
	"github.com/lumensparkxy/barcode-pipeline/internal/queue"
	"go.uber.org/zap"
)

// StartQueueLengthUpdater periodically samples pending-job counts per job
// type from the document-store-backed queue and updates the
// barcode_queue_length gauge the dispatcher's /metrics exposes.
func StartQueueLengthUpdater(ctx context.Context, cfg *config.Config, q *queue.Queue, log *zap.Logger) {
	interval := 2 * time.Second
	if cfg.Observability.QueueSampleInterval > 0 {
		interval = cfg.Observability.QueueSampleInterval
	}
	jobTypes := []queue.Type{queue.TypePreprocess, queue.TypeDecodePrimary, queue.TypeDecodeFallback, queue.TypeCleanup}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, jt := range jobTypes {
					n, err := q.CountPending(ctx, jt)
					if err != nil {
						log.Debug("queue length poll error", String("job_type", string(jt)), Err(err))
						continue
					}
					QueueLength.WithLabelValues(string(jt)).Set(float64(n))
				}
			}
		}
	}()
}
