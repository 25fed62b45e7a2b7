package remote

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/errs"
	"github.com/withterm/term-sub003/internal/metrics"
)

// Stats accumulates upload outcomes across an UploadWorker's lifetime,
// exposed for observability (spec §6).
type Stats struct {
	Uploaded    int64
	Failed      int64
	BatchesSent int64
	Retries     int64
}

// UploadWorker periodically drains the Buffer (spilling over to the
// OfflineCache when a batch exhausts its retries) and uploads batches via
// Client, backing off exponentially with jitter between retries of the same
// batch (spec §6).
type UploadWorker struct {
	buffer *Buffer
	cache  *OfflineCache
	client *Client
	cfg    *config.RemoteRepositoryConfig
	logger *slog.Logger

	stats Stats

	stop chan struct{}
	done chan struct{}
}

// NewUploadWorker builds an UploadWorker. cache may be nil to disable
// offline spill-over (batches that exhaust retries are then dropped, with a
// logged error).
func NewUploadWorker(
	buffer *Buffer, cache *OfflineCache, client *Client, cfg *config.RemoteRepositoryConfig, logger *slog.Logger,
) *UploadWorker {
	return &UploadWorker{
		buffer: buffer, cache: cache, client: client, cfg: cfg, logger: logger,
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

// Start runs the worker's drain loop on a ticker until Stop is called or
// ctx is cancelled.
func (w *UploadWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop requests a graceful shutdown, draining one final time before
// returning, and blocks until the loop has exited.
func (w *UploadWorker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *UploadWorker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drainOnce(context.Background())

			return
		case <-w.stop:
			w.drainOnce(context.Background())

			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *UploadWorker) drainOnce(ctx context.Context) {
	batch := w.buffer.Drain(w.cfg.BatchSize)
	if len(batch) == 0 {
		return
	}

	docs := make([]metrics.Document, len(batch))
	for i, e := range batch {
		docs[i] = e.Document
	}

	resp, err := w.client.Ingest(ctx, docs)

	atomic.AddInt64(&w.stats.BatchesSent, 1)

	if err == nil {
		w.settleUploaded(batch, resp)

		return
	}

	if !errs.IsRetryable(err) {
		w.logger.Error("upload batch failed non-retryably, dropping",
			slog.Int("batch_size", len(batch)), slog.String("error", err.Error()))
		atomic.AddInt64(&w.stats.Failed, int64(len(batch)))
		w.forgetCached(batch)

		return
	}

	w.requeueOrSpill(batch, err)
}

// settleUploaded reconciles a successful Ingest call against the server's
// accepted/rejected counts (spec §6): the server, not the HTTP status code,
// is authoritative for which documents actually landed. Rejected documents
// are counted as failed and are not retried, since a rejection means the
// server looked at that particular document and refused it, which a retry
// won't change (spec §9 open question on retry semantics). Either way the
// batch is done with, so any cache-sourced entries are deleted from the
// offline cache.
func (w *UploadWorker) settleUploaded(batch []Entry, resp *IngestResponse) {
	atomic.AddInt64(&w.stats.Uploaded, int64(resp.Accepted))

	if resp.Rejected > 0 {
		w.logger.Error("remote rejected documents in batch",
			slog.Int("rejected", resp.Rejected), slog.Any("errors", resp.Errors))
		atomic.AddInt64(&w.stats.Failed, int64(resp.Rejected))
	}

	w.forgetCached(batch)
}

// forgetCached deletes every cache-sourced entry in batch from the offline
// cache: the batch has been handed to the remote service and either
// accepted or permanently rejected, so there's nothing left to replay.
func (w *UploadWorker) forgetCached(batch []Entry) {
	if w.cache == nil {
		return
	}

	var ids []int64

	for _, e := range batch {
		if e.CacheID != 0 {
			ids = append(ids, e.CacheID)
		}
	}

	if len(ids) == 0 {
		return
	}

	if err := w.cache.DeleteIDs(ids); err != nil {
		w.logger.Error("removing settled entries from offline cache failed", slog.String("error", err.Error()))
	}
}

func (w *UploadWorker) requeueOrSpill(batch []Entry, cause error) {
	var retryAfter time.Duration

	var rl *errs.RateLimitedError
	if errors.As(cause, &rl) && rl.RetryAfterSeconds > 0 {
		retryAfter = time.Duration(rl.RetryAfterSeconds) * time.Second
	}

	var toRequeue, toSpill []Entry

	for _, e := range batch {
		e.RetryCount++
		atomic.AddInt64(&w.stats.Retries, 1)

		if e.RetryCount > w.cfg.MaxRetries {
			toSpill = append(toSpill, e)

			continue
		}

		delay := retryAfter
		if delay == 0 {
			delay = backoffDelay(w.cfg.BackoffBase, e.RetryCount)
		}

		e.ReadyAt = time.Now().Add(delay)
		toRequeue = append(toRequeue, e)
	}

	if len(toRequeue) > 0 {
		w.buffer.Requeue(toRequeue)
	}

	if w.cache == nil {
		if len(toSpill) > 0 {
			w.logger.Error("upload entries exhausted retries and no offline cache is configured, dropping",
				slog.Int("dropped", len(toSpill)), slog.String("error", cause.Error()))
		}

		atomic.AddInt64(&w.stats.Failed, int64(len(toSpill)))

		return
	}

	for _, e := range toSpill {
		if e.CacheID != 0 {
			// already persisted from a prior spill or a startup replay
			continue
		}

		if _, err := w.cache.Save(e); err != nil {
			w.logger.Error("spilling exhausted-retry entry to offline cache failed", slog.String("error", err.Error()))
			atomic.AddInt64(&w.stats.Failed, 1)
		}
	}
}

// backoffDelay computes base * 2^min(retryCount, 5) plus 0-1000ms jitter,
// using backoff.ExponentialBackOff's interval growth for the deterministic
// part (spec §6 backoff formula).
func backoffDelay(base time.Duration, retryCount int) time.Duration {
	exp := retryCount
	if exp > 5 {
		exp = 5
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = 2
	eb.RandomizationFactor = 0

	var interval time.Duration

	for i := 0; i <= exp; i++ {
		interval = eb.NextBackOff()
	}

	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond

	return interval + jitter
}

// Stats returns a snapshot of the worker's cumulative counters.
func (w *UploadWorker) Stats() Stats {
	return Stats{
		Uploaded:    atomic.LoadInt64(&w.stats.Uploaded),
		Failed:      atomic.LoadInt64(&w.stats.Failed),
		BatchesSent: atomic.LoadInt64(&w.stats.BatchesSent),
		Retries:     atomic.LoadInt64(&w.stats.Retries),
	}
}
