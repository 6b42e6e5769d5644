package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skyline93/stash/internal/fs"
	"github.com/skyline93/stash/internal/resource"
)

const updateConcurrency = 4

// stagingGraceAge is how old a staging file must be before SweepOrphans
// considers it abandoned rather than in flight.
const stagingGraceAge = time.Hour

// List returns all cache entries, oldest first.
func (m *Manager) List() ([]Entry, error) {
	var entries []Entry
	err := m.withIndex(false, func(idx *Index) error {
		entries = idx.all()
		return nil
	})
	return entries, err
}

// Lookup returns the entry for id, if any.
func (m *Manager) Lookup(id resource.Identifier) (Entry, bool, error) {
	var entry Entry
	var ok bool
	err := m.withIndex(false, func(idx *Index) error {
		entry, ok = idx.lookup(id)
		return nil
	})
	return entry, ok, err
}

// Remove evicts the entry for id: the index record, the data file and any
// extraction artifacts derived from it.
func (m *Manager) Remove(id resource.Identifier) error {
	key := id.Key()
	lock, err := acquireLock(m.keyLockPath(key), true, m.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = lock.release() }()

	return m.withIndex(true, func(idx *Index) error {
		if _, ok := idx.Entries[key]; !ok {
			return errors.Wrapf(ErrEntryNotFound, "%s", id)
		}
		delete(idx.Entries, key)
		if err := fs.RemoveIfExists(m.dataPath(key)); err != nil {
			return errors.Wrap(err, "remove data file")
		}
		if err := fs.RemoveAll(m.ExtractRoot(key)); err != nil {
			return errors.Wrap(err, "remove extractions")
		}
		log.Debugf("removed cache entry %s", id)
		return nil
	})
}

// RemoveAll clears the whole cache.
func (m *Manager) RemoveAll() error {
	return m.withIndex(true, func(idx *Index) error {
		for key := range idx.Entries {
			if err := fs.RemoveIfExists(m.dataPath(key)); err != nil {
				return errors.Wrap(err, "remove data file")
			}
			if err := fs.RemoveAll(m.ExtractRoot(key)); err != nil {
				return errors.Wrap(err, "remove extractions")
			}
			delete(idx.Entries, key)
		}
		return nil
	})
}

// Update force-refreshes the entry for id.
func (m *Manager) Update(ctx context.Context, id resource.Identifier) error {
	_, err := m.Resolve(ctx, id, Options{ForceRefresh: true})
	return err
}

// UpdateAll force-refreshes every entry exactly once.
func (m *Manager) UpdateAll(ctx context.Context) error {
	entries, err := m.List()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(updateConcurrency)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			id, err := resource.Parse(entry.URL)
			if err != nil {
				return errors.Wrapf(err, "entry %s", entry.Key)
			}
			return m.Update(gctx, id)
		})
	}
	return g.Wait()
}

// SweepOrphans removes data files no index entry references, along with
// leftover staging files from interrupted downloads. It is a maintenance
// operation, separate from the resolve critical path.
func (m *Manager) SweepOrphans() (int, error) {
	removed := 0
	err := m.withIndex(true, func(idx *Index) error {
		err := filepath.Walk(m.dataDir(), func(name string, fi os.FileInfo, err error) error {
			if err != nil || !fi.Mode().IsRegular() {
				return err
			}
			if _, ok := idx.Entries[filepath.Base(name)]; ok {
				return nil
			}
			if err := fs.Remove(name); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "sweep data")
		}

		staging, err := os.ReadDir(m.stagingDir())
		if err != nil {
			return errors.Wrap(err, "sweep staging")
		}
		for _, de := range staging {
			fi, err := de.Info()
			if err != nil {
				return errors.Wrap(err, "sweep staging")
			}
			// A young staging file may be a live download or upload of
			// another process; the index lock does not cover those.
			if time.Since(fi.ModTime()) < stagingGraceAge {
				continue
			}
			if err := fs.Remove(filepath.Join(m.stagingDir(), de.Name())); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
