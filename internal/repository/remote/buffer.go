// Package remote implements the upload path from a local Repository to an
// external metrics service: a bounded in-memory Buffer, a SQLite-backed
// OfflineCache for documents that survive process restarts, an UploadWorker
// that drains both with retry/backoff, and an HTTP client for the wire
// protocol (spec §6).
package remote

import (
	"sync"
	"time"

	"github.com/withterm/term-sub003/internal/errs"
	"github.com/withterm/term-sub003/internal/metrics"
)

// Entry wraps a queued metrics.Document with its retry bookkeeping.
type Entry struct {
	Document   metrics.Document
	RetryCount int
	QueuedAt   time.Time
	ReadyAt    time.Time // zero until a failed attempt schedules a retry
	CacheID    int64     // non-zero if this entry was replayed from the OfflineCache
}

// Buffer is a bounded, FIFO, goroutine-safe in-memory queue of pending
// uploads (spec §6). Push rejects once MaxSize entries are pending, forcing
// the caller to fall back to the OfflineCache rather than grow unbounded.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
}

// NewBuffer builds an empty Buffer bounded at maxSize entries.
func NewBuffer(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize}
}

// Push appends entry, returning an *errs.BufferOverflowError if the buffer
// is already at capacity.
func (b *Buffer) Push(entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.maxSize {
		return &errs.BufferOverflowError{Pending: len(b.entries), Max: b.maxSize}
	}

	b.entries = append(b.entries, entry)

	return nil
}

// Drain removes and returns up to n entries whose ReadyAt has passed (or is
// zero, meaning never attempted), preserving FIFO order.
func (b *Buffer) Drain(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	out := make([]Entry, 0, n)
	remaining := b.entries[:0:0]

	for _, e := range b.entries {
		if len(out) < n && (e.ReadyAt.IsZero() || !e.ReadyAt.After(now)) {
			out = append(out, e)

			continue
		}

		remaining = append(remaining, e)
	}

	b.entries = remaining

	return out
}

// Requeue pushes entries back onto the front of the buffer, for batches
// that failed to upload and should be retried (the buffer itself does not
// silently drop on overflow here: the caller decides whether to spill to
// the OfflineCache instead).
func (b *Buffer) Requeue(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(entries, b.entries...)
}

// Len returns the number of pending entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.entries)
}
