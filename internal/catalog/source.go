package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/af-corp/quorum-engine/internal/config"
)

// Snapshot is an immutable view of the catalog at one load. Sessions capture
// a snapshot reference once and are unaffected by concurrent reloads.
type Snapshot struct {
	Version int
	records []ModelRecord
	byID    map[string]int
}

// NewSnapshot builds a snapshot from records, rejecting duplicate or empty
// ids. Records are held in id order so iteration is deterministic.
func NewSnapshot(version int, records []ModelRecord) (*Snapshot, error) {
	sorted := make([]ModelRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]int, len(sorted))
	for i, r := range sorted {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog record %d has empty id", i)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog id %q", r.ID)
		}
		byID[r.ID] = i
	}
	return &Snapshot{Version: version, records: sorted, byID: byID}, nil
}

// Get returns the record for a model id.
func (s *Snapshot) Get(id string) (ModelRecord, bool) {
	i, ok := s.byID[id]
	if !ok {
		return ModelRecord{}, false
	}
	return s.records[i], true
}

// All returns the records in id order. Callers must not mutate the slice.
func (s *Snapshot) All() []ModelRecord {
	return s.records
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

type catalogFile struct {
	Version int           `yaml:"version"`
	Models  []ModelRecord `yaml:"models"`
}

// Source loads the catalog file and swaps snapshots atomically on reload.
type Source struct {
	path   string
	mu     sync.RWMutex
	snap   *Snapshot
	logger *slog.Logger
}

func NewSource(path string, logger *slog.Logger) *Source {
	return &Source{path: path, logger: logger}
}

// Load reads and validates the catalog file, then swaps the snapshot.
// Records with an unknown status are dropped with a warning rather than
// failing the whole load.
func (s *Source) Load() error {
	var file catalogFile
	if err := config.LoadFile(s.path, &file); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	kept := make([]ModelRecord, 0, len(file.Models))
	for _, r := range file.Models {
		if _, ok := ParseStatus(string(r.Status)); !ok {
			s.logger.Warn("catalog record has unknown status, dropping",
				"model", r.ID, "status", string(r.Status))
			continue
		}
		kept = append(kept, r)
	}

	snap, err := NewSnapshot(file.Version, kept)
	if err != nil {
		return fmt.Errorf("build catalog snapshot: %w", err)
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info("catalog loaded", "path", s.path, "version", snap.Version, "models", snap.Len())
	return nil
}

// Snapshot returns the current snapshot reference.
func (s *Source) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Watch reloads the catalog when the file changes.
func (s *Source) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch catalog file %s: %w", s.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.logger.Info("catalog file changed, reloading", "file", event.Name)
					if err := s.Load(); err != nil {
						s.logger.Error("catalog reload failed, keeping previous snapshot", "error", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
