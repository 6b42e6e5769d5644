package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/skyline93/stash/internal/fs"
	"github.com/skyline93/stash/internal/resource"
)

// ErrEntryNotFound is returned when no cache entry exists for an identifier.
var ErrEntryNotFound = errors.New("cache entry not found")

// Entry records one cached artifact. Entries are owned by the index and only
// mutated by the manager under the per-key lock.
type Entry struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Scheme    string    `json:"scheme"`
	Token     string    `json:"token"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Index is the persistent mapping from cache key to entry, stored as a single
// JSON file at the cache root. The in-memory copy is authoritative for the
// duration of one locked operation and reloaded at lock acquisition so
// concurrent writers are observed.
type Index struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

const indexVersion = 1

func newIndex() *Index {
	return &Index{Version: indexVersion, Entries: make(map[string]Entry)}
}

// loadIndex reads the index file, returning an empty index if none exists.
func loadIndex(path string) (*Index, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newIndex(), nil
		}
		return nil, errors.Wrap(err, "load index")
	}

	idx := newIndex()
	if err := json.Unmarshal(buf, idx); err != nil {
		return nil, errors.Wrap(err, "decode index")
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	return idx, nil
}

// save writes the index atomically.
func (idx *Index) save(path string) error {
	buf, err := json.Marshal(idx)
	if err != nil {
		return errors.Wrap(err, "encode index")
	}

	tmp, err := fs.TempFile(filepath.Dir(path), "index-*")
	if err != nil {
		return errors.Wrap(err, "save index")
	}
	_, err = tmp.Write(buf)
	if err == nil {
		err = tmp.Sync()
	}
	cerr := tmp.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = fs.Remove(tmp.Name())
		return errors.Wrap(err, "save index")
	}
	return fs.AtomicRename(tmp.Name(), path)
}

// all returns the entries sorted by fetch time.
func (idx *Index) all() []Entry {
	entries := make([]Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FetchedAt.Equal(entries[j].FetchedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].FetchedAt.Before(entries[j].FetchedAt)
	})
	return entries
}

// lookup finds the entry for an identifier.
func (idx *Index) lookup(id resource.Identifier) (Entry, bool) {
	e, ok := idx.Entries[id.Key()]
	return e, ok
}
