package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/errs"
	"github.com/withterm/term-sub003/internal/metrics"
	"github.com/withterm/term-sub003/internal/repository"
)

// Repository is a repository.Repository that keeps every document locally
// (so Load/Get/ListKeys/etc. stay synchronous and always answerable) while
// also handing it off to a buffered, retried upload pipeline bound for an
// external metrics service (spec §6). On construction it replays whatever
// the OfflineCache has left over from a prior process's unfinished uploads
// (spec §4.G.2), so a restart doesn't silently strand them.
type Repository struct {
	local  *repository.InMemory
	buffer *Buffer
	cache  *OfflineCache
	client *Client
	worker *UploadWorker
	logger *slog.Logger
}

var _ repository.Repository = (*Repository)(nil)

// NewRepository assembles a Repository from cfg: it opens the offline cache,
// wires the buffer/client/upload worker together, replays any cache entries
// left over from a previous run, and starts the upload worker's drain loop.
func NewRepository(ctx context.Context, cfg *config.RemoteRepositoryConfig, logger *slog.Logger) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote repository: %w", err)
	}

	cache, err := NewOfflineCache(cfg.OfflineCachePath)
	if err != nil {
		return nil, err
	}

	buffer := NewBuffer(cfg.MaxBufferSize)
	client := NewClient(cfg)
	worker := NewUploadWorker(buffer, cache, client, cfg, logger)

	r := &Repository{
		local:  repository.NewInMemory(),
		buffer: buffer,
		cache:  cache,
		client: client,
		worker: worker,
		logger: logger,
	}

	if err := r.replayCache(); err != nil {
		cache.Close()

		return nil, err
	}

	worker.Start(ctx)

	return r, nil
}

// replayCache loads every entry the OfflineCache still holds from a prior
// process and re-queues it on the in-memory Buffer, tagged with its
// CacheID so the upload worker can delete the cache row once the entry
// finally uploads (or is permanently rejected) instead of leaving it
// stranded forever (spec §4.G.2). An entry that doesn't fit because the
// buffer is already full is left in the cache and logged: it will be
// picked up by a later replay or manual cache inspection.
func (r *Repository) replayCache() error {
	cached, err := r.cache.LoadAll()
	if err != nil {
		return err
	}

	if len(cached) == 0 {
		return nil
	}

	replayed := 0

	for _, c := range cached {
		entry := c.Entry
		entry.CacheID = c.ID

		if err := r.buffer.Push(entry); err != nil {
			r.logger.Warn("offline cache replay: buffer full, leaving entry cached",
				slog.Int64("cache_id", c.ID), slog.String("error", err.Error()))

			continue
		}

		replayed++
	}

	r.logger.Info("offline cache replay complete",
		slog.Int("cached", len(cached)), slog.Int("replayed", replayed))

	return nil
}

// Save stores doc locally and enqueues it for upload, falling back to the
// offline cache if the in-memory buffer is momentarily full.
func (r *Repository) Save(doc metrics.Document) error {
	if err := r.local.Save(doc); err != nil {
		return err
	}

	entry := Entry{Document: doc, QueuedAt: time.Now()}

	if err := r.buffer.Push(entry); err == nil {
		return nil
	}

	id, err := r.cache.Save(entry)
	if err != nil {
		return fmt.Errorf("remote repository: buffer full and offline cache save failed: %w", err)
	}

	r.logger.Warn("upload buffer full, spilled to offline cache", slog.Int64("cache_id", id))

	return nil
}

func (r *Repository) Load(key string) (metrics.Document, error) { return r.local.Load(key) }

func (r *Repository) Get(key string) (metrics.Document, bool, error) { return r.local.Get(key) }

func (r *Repository) Delete(key string) error { return r.local.Delete(key) }

func (r *Repository) ListKeys() ([]string, error) { return r.local.ListKeys() }

func (r *Repository) Exists(key string) (bool, error) { return r.local.Exists(key) }

func (r *Repository) Metadata(key string) (map[string]string, error) { return r.local.Metadata(key) }

// Stats returns the upload worker's cumulative counters.
func (r *Repository) Stats() Stats { return r.worker.Stats() }

// Close stops the upload worker (draining once more first) and closes the
// offline cache's database handle.
func (r *Repository) Close() error {
	r.worker.Stop()

	if err := r.cache.Close(); err != nil {
		return fmt.Errorf("%w: closing offline cache: %v", errs.ErrCache, err)
	}

	return nil
}
