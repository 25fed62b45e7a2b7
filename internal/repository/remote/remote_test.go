package remote_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/metrics"
	"github.com/withterm/term-sub003/internal/repository/remote"
)

func doc(key string) metrics.Document {
	return metrics.Document{ResultKey: key, ValidationResult: metrics.ValidationSuccess, Timestamp: time.Unix(0, 0)}
}

func TestBuffer_FIFOAndOverflow(t *testing.T) {
	buf := remote.NewBuffer(2)

	require.NoError(t, buf.Push(remote.Entry{Document: doc("a")}))
	require.NoError(t, buf.Push(remote.Entry{Document: doc("b")}))

	err := buf.Push(remote.Entry{Document: doc("c")})
	require.Error(t, err)
	assert.Equal(t, 2, buf.Len())

	drained := buf.Drain(10)
	require.Len(t, drained, 2)
	assert.Equal(t, "a", drained[0].Document.ResultKey)
	assert.Equal(t, "b", drained[1].Document.ResultKey)
	assert.Equal(t, 0, buf.Len())
}

func TestBuffer_DrainRespectsReadyAt(t *testing.T) {
	buf := remote.NewBuffer(10)

	require.NoError(t, buf.Push(remote.Entry{Document: doc("now")}))
	require.NoError(t, buf.Push(remote.Entry{Document: doc("later"), ReadyAt: time.Now().Add(time.Hour)}))

	drained := buf.Drain(10)
	require.Len(t, drained, 1)
	assert.Equal(t, "now", drained[0].Document.ResultKey)
	assert.Equal(t, 1, buf.Len())
}

func TestBuffer_Requeue(t *testing.T) {
	buf := remote.NewBuffer(10)
	require.NoError(t, buf.Push(remote.Entry{Document: doc("existing")}))

	buf.Requeue([]remote.Entry{{Document: doc("retried")}})

	drained := buf.Drain(10)
	require.Len(t, drained, 2)
	assert.Equal(t, "retried", drained[0].Document.ResultKey)
	assert.Equal(t, "existing", drained[1].Document.ResultKey)
}

func TestOfflineCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.db")

	cache, err := remote.NewOfflineCache(path)
	require.NoError(t, err)
	defer cache.Close()

	id, err := cache.Save(remote.Entry{Document: doc("x"), RetryCount: 2, QueuedAt: time.Unix(100, 0)})
	require.NoError(t, err)
	assert.NotZero(t, id)

	n, err := cache.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := cache.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "x", all[0].Document.ResultKey)
	assert.Equal(t, 2, all[0].RetryCount)

	require.NoError(t, cache.DeleteIDs([]int64{all[0].ID}))

	n, err = cache.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOfflineCache_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.db")

	cache, err := remote.NewOfflineCache(path)
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.Save(remote.Entry{Document: doc("x"), QueuedAt: time.Unix(1, 0)})
	require.NoError(t, err)
	_, err = cache.Save(remote.Entry{Document: doc("y"), QueuedAt: time.Unix(2, 0)})
	require.NoError(t, err)

	require.NoError(t, cache.Clear())

	n, err := cache.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClient_Ingest_Success(t *testing.T) {
	var received []metrics.Document

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/metrics", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Term-Signature"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(remote.IngestResponse{Accepted: 1}))
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
	}
	client := remote.NewClient(cfg)

	resp, err := client.Ingest(context.Background(), []metrics.Document{doc("a")})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "a", received[0].ResultKey)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 0, resp.Rejected)
}

func TestClient_Ingest_PartialRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(remote.IngestResponse{
			Accepted: 1, Rejected: 1, Errors: []string{"document b: schema mismatch"},
		}))
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
	}
	client := remote.NewClient(cfg)

	resp, err := client.Ingest(context.Background(), []metrics.Document{doc("a"), doc("b")})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)
	assert.Len(t, resp.Errors, 1)
}

func TestClient_Ingest_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
	}
	client := remote.NewClient(cfg)

	_, err := client.Ingest(context.Background(), []metrics.Document{doc("a")})
	require.Error(t, err)

	var rl interface{ Error() string }
	require.ErrorAs(t, err, &rl)
}

func TestUploadWorker_UploadsAndRetriesOnFailure(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(remote.IngestResponse{Accepted: 1}))
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
		FlushInterval: 20 * time.Millisecond, BatchSize: 10, MaxRetries: 3, BackoffBase: 10 * time.Millisecond,
	}

	buf := remote.NewBuffer(10)
	require.NoError(t, buf.Push(remote.Entry{Document: doc("a"), QueuedAt: time.Now()}))

	client := remote.NewClient(cfg)
	worker := remote.NewUploadWorker(buf, nil, client, cfg, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	worker.Start(ctx)

	require.Eventually(t, func() bool {
		return worker.Stats().Uploaded == 1
	}, time.Second, 10*time.Millisecond)

	worker.Stop()

	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.Uploaded)
	assert.GreaterOrEqual(t, stats.Retries, int64(1))
}

func TestUploadWorker_SpillsToOfflineCacheAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
		FlushInterval: 10 * time.Millisecond, BatchSize: 10, MaxRetries: 1, BackoffBase: time.Millisecond,
	}

	buf := remote.NewBuffer(10)
	require.NoError(t, buf.Push(remote.Entry{Document: doc("a"), QueuedAt: time.Now()}))

	cachePath := filepath.Join(t.TempDir(), "pending.db")
	cache, err := remote.NewOfflineCache(cachePath)
	require.NoError(t, err)
	defer cache.Close()

	client := remote.NewClient(cfg)
	worker := remote.NewUploadWorker(buf, cache, client, cfg, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	worker.Start(ctx)

	require.Eventually(t, func() bool {
		n, err := cache.Count()

		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	worker.Stop()
}

func TestUploadWorker_CountsServerRejectionsAndDoesNotRetry(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(remote.IngestResponse{
			Accepted: 1, Rejected: 1, Errors: []string{"bad document"},
		}))
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
		FlushInterval: 20 * time.Millisecond, BatchSize: 10, MaxRetries: 3, BackoffBase: 10 * time.Millisecond,
	}

	buf := remote.NewBuffer(10)
	require.NoError(t, buf.Push(remote.Entry{Document: doc("a"), QueuedAt: time.Now()}))
	require.NoError(t, buf.Push(remote.Entry{Document: doc("b"), QueuedAt: time.Now()}))

	client := remote.NewClient(cfg)
	worker := remote.NewUploadWorker(buf, nil, client, cfg, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	worker.Start(ctx)

	require.Eventually(t, func() bool {
		stats := worker.Stats()

		return stats.Uploaded == 1 && stats.Failed == 1
	}, time.Second, 10*time.Millisecond)

	worker.Stop()

	// a rejection isn't retried: exactly one ingest call was made.
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestUploadWorker_DeletesCachedEntryOnceSettled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(remote.IngestResponse{Accepted: 1}))
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
		FlushInterval: 10 * time.Millisecond, BatchSize: 10, MaxRetries: 3, BackoffBase: time.Millisecond,
	}

	cachePath := filepath.Join(t.TempDir(), "pending.db")
	cache, err := remote.NewOfflineCache(cachePath)
	require.NoError(t, err)
	defer cache.Close()

	id, err := cache.Save(remote.Entry{Document: doc("replayed"), QueuedAt: time.Now()})
	require.NoError(t, err)

	buf := remote.NewBuffer(10)
	require.NoError(t, buf.Push(remote.Entry{Document: doc("replayed"), QueuedAt: time.Now(), CacheID: id}))

	client := remote.NewClient(cfg)
	worker := remote.NewUploadWorker(buf, cache, client, cfg, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	worker.Start(ctx)

	require.Eventually(t, func() bool {
		n, err := cache.Count()

		return err == nil && n == 0
	}, time.Second, 10*time.Millisecond)

	worker.Stop()
}

func TestRepository_ReplaysOfflineCacheOnStartup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var docs []metrics.Document
		require.NoError(t, json.NewDecoder(r.Body).Decode(&docs))
		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(remote.IngestResponse{Accepted: len(docs)}))
	}))
	defer srv.Close()

	cachePath := filepath.Join(t.TempDir(), "pending.db")

	seed, err := remote.NewOfflineCache(cachePath)
	require.NoError(t, err)
	_, err = seed.Save(remote.Entry{Document: doc("stranded"), QueuedAt: time.Unix(1, 0)})
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
		FlushInterval: 10 * time.Millisecond, BatchSize: 10, MaxRetries: 3, BackoffBase: time.Millisecond,
		MaxBufferSize: 10, OfflineCachePath: cachePath,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := remote.NewRepository(ctx, cfg, slog.Default())
	require.NoError(t, err)
	defer repo.Close()

	require.Eventually(t, func() bool {
		return repo.Stats().Uploaded == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRepository_SaveStoresLocallyAndEnqueuesUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		require.NoError(t, json.NewEncoder(w).Encode(remote.IngestResponse{Accepted: 1}))
	}))
	defer srv.Close()

	cfg := &config.RemoteRepositoryConfig{
		BaseURL: srv.URL, APIKey: "secret", RequestTimeout: time.Second, UploadRatePerSec: 100,
		FlushInterval: 10 * time.Millisecond, BatchSize: 10, MaxRetries: 3, BackoffBase: time.Millisecond,
		MaxBufferSize: 10, OfflineCachePath: filepath.Join(t.TempDir(), "pending.db"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := remote.NewRepository(ctx, cfg, slog.Default())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Save(doc("local-and-remote")))

	got, err := repo.Load("local-and-remote")
	require.NoError(t, err)
	assert.Equal(t, "local-and-remote", got.ResultKey)

	require.Eventually(t, func() bool {
		return repo.Stats().Uploaded == 1
	}, time.Second, 10*time.Millisecond)
}
