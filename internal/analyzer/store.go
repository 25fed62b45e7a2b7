package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/withterm/term-sub003/internal/errs"
)

// StateStore persists one Analyzer's State per partition, so a later run
// can load a prior partition's State and merge it with a freshly computed
// one instead of re-scanning historical data (spec §4.E's three-step
// incremental flow: load previous state, compute new state, merge and
// store).
type StateStore interface {
	Load(partition, analyzerName string) (raw json.RawMessage, found bool, err error)
	Save(partition, analyzerName string, raw json.RawMessage) error
}

// FileStateStore persists analyzer state as one JSON file per
// (partition, analyzer) pair under a root directory: root/<partition>/<analyzer>.json.
type FileStateStore struct {
	root string
}

// NewFileStateStore builds a FileStateStore rooted at dir.
func NewFileStateStore(dir string) *FileStateStore {
	return &FileStateStore{root: dir}
}

func (s *FileStateStore) path(partition, analyzerName string) string {
	return filepath.Join(s.root, partition, analyzerName+".json")
}

// Load reads the persisted state for (partition, analyzerName), if any.
func (s *FileStateStore) Load(partition, analyzerName string) (json.RawMessage, bool, error) {
	data, err := os.ReadFile(s.path(partition, analyzerName))
	if os.IsNotExist(err) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: reading analyzer state: %v", errs.ErrIO, err)
	}

	return data, true, nil
}

// Save persists raw as the state for (partition, analyzerName), creating
// the partition directory if needed.
func (s *FileStateStore) Save(partition, analyzerName string, raw json.RawMessage) error {
	dir := filepath.Join(s.root, partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating analyzer state directory: %v", errs.ErrIO, err)
	}

	if err := os.WriteFile(s.path(partition, analyzerName), raw, 0o644); err != nil {
		return fmt.Errorf("%w: writing analyzer state: %v", errs.ErrIO, err)
	}

	return nil
}
