package viseme

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/metrics"
)

// Store holds the current table and swaps in new ones on reload.
type Store struct {
	logger zerolog.Logger
	table  atomic.Pointer[Table]
}

// NewStore creates a store serving table, or the built-in table when nil.
func NewStore(logger zerolog.Logger, table *Table) *Store {
	if table == nil {
		table = Default()
	}
	s := &Store{logger: logger.With().Str("component", "viseme").Logger()}
	s.table.Store(table)
	return s
}

// Table returns the current table.
func (s *Store) Table() *Table {
	return s.table.Load()
}

// Swap replaces the current table.
func (s *Store) Swap(t *Table) {
	s.table.Store(t)
}

// VisemeFor resolves symbol against the current table. Fallbacks to silence
// are logged at debug level only.
func (s *Store) VisemeFor(symbol string) Viseme {
	v, ok := s.Table().Resolve(symbol)
	if !ok {
		metrics.VisemeFallbacks.Inc()
		s.logger.Debug().Str("phoneme", symbol).Msg("No viseme for phoneme, using silence")
	}
	return v
}

// Reload parses path and swaps it in. The current table is kept on error.
func (s *Store) Reload(path string) error {
	t, err := LoadFile(path)
	if err != nil {
		return err
	}
	s.Swap(t)

	visemes, phonemes := t.Size()
	s.logger.Info().
		Str("path", path).
		Int("visemes", visemes).
		Int("phonemes", phonemes).
		Msg("Viseme mapping loaded")
	return nil
}

// Watch reloads path whenever it changes until ctx is done. The parent
// directory is watched so that editors replacing the file are noticed.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := s.Reload(abs); err != nil {
					s.logger.Warn().Err(err).Str("path", abs).Msg("Viseme mapping reload failed, keeping previous table")
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("Viseme watcher error")
		}
	}
}
