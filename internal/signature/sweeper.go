package signature

import (
	"context"
	"log/slog"
	"time"
)

// ReferenceLister reports which signature filenames are still referenced by
// persisted records.
type ReferenceLister interface {
	ListSignatureNames(ctx context.Context) ([]string, error)
}

// Sweeper periodically deletes orphaned signature files: generated-shape
// files in the shared directory that no current record references. It only
// acts on a freshly re-read reference set, so racing an in-flight record
// deletion at worst double-deletes an already-gone file.
type Sweeper struct {
	store    *Store
	refs     ReferenceLister
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(store *Store, refs ReferenceLister, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, refs: refs, interval: interval, logger: logger}
}

// Run blocks until ctx is done, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("signature sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce scans the shared directory and removes unreferenced files,
// returning how many were deleted. Idempotent: a second run with no
// intervening record changes deletes nothing.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	files, err := s.store.list()
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	names, err := s.refs.ListSignatureNames(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{}, len(names))
	for _, n := range names {
		referenced[n] = struct{}{}
	}

	deleted := 0
	for _, f := range files {
		if _, ok := referenced[f]; ok {
			continue
		}
		if err := s.store.Delete(f); err != nil {
			s.logger.Warn("orphan delete failed", "file", f, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("signature sweep removed orphans", "deleted", deleted, "scanned", len(files))
	}
	return deleted, nil
}
