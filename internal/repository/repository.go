// Package repository defines the persistence contract for metrics.Document
// (spec §5) and a query builder over a Repository's contents. The remote
// subpackage adds buffered, retried upload to an external metrics service on
// top of the same Document shape.
package repository

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/withterm/term-sub003/internal/metrics"
)

// ErrNotFound is returned by Load/Get when no document exists under a key.
var ErrNotFound = errors.New("repository: document not found")

// Repository is the storage contract for validation metrics (spec §5).
type Repository interface {
	Save(doc metrics.Document) error
	Load(key string) (metrics.Document, error)
	Get(key string) (metrics.Document, bool, error)
	Delete(key string) error
	ListKeys() ([]string, error)
	Exists(key string) (bool, error)
	Metadata(key string) (map[string]string, error)
}

// InMemory is a goroutine-safe, process-local Repository implementation,
// used as the default when no remote repository is configured, and as the
// base every test in this module builds on (mirrors the teacher project's
// in-memory fakes for external dependencies).
type InMemory struct {
	mu   sync.RWMutex
	docs map[string]metrics.Document
}

// NewInMemory returns an empty InMemory repository.
func NewInMemory() *InMemory {
	return &InMemory{docs: map[string]metrics.Document{}}
}

func (r *InMemory) Save(doc metrics.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[doc.ResultKey] = doc

	return nil
}

func (r *InMemory) Load(key string) (metrics.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[key]
	if !ok {
		return metrics.Document{}, ErrNotFound
	}

	return doc, nil
}

func (r *InMemory) Get(key string) (metrics.Document, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[key]

	return doc, ok, nil
}

func (r *InMemory) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[key]; !ok {
		return ErrNotFound
	}

	delete(r.docs, key)

	return nil
}

func (r *InMemory) ListKeys() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.docs))
	for k := range r.docs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys, nil
}

func (r *InMemory) Exists(key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.docs[key]

	return ok, nil
}

func (r *InMemory) Metadata(key string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[key]
	if !ok {
		return nil, ErrNotFound
	}

	return doc.Metadata, nil
}

// all returns every stored document, for Query's own use; not part of the
// Repository interface since most adapters (a remote service in particular)
// cannot cheaply support an unbounded full scan.
func (r *InMemory) all() []metrics.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]metrics.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, d)
	}

	return out
}
