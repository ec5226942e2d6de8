// Package mediadb implements the narrow media-catalog interface the
// player needs (spec §4.10: "query media for next id, call
// media.play(id, cb)"), plus a simple in-memory/YAML-backed catalog — a
// real SQLite-backed catalog is out of core scope, but the interface is
// the real contract a production catalog would satisfy.
package mediadb

import (
	"errors"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when an id has no catalog entry.
var ErrNotFound = errors.New("mediadb: entry not found")

// Entry is one catalog item.
type Entry struct {
	ID     int    `yaml:"id"`
	URL    string `yaml:"url"`
	Mime   string `yaml:"mime"`
	Title  string `yaml:"title"`
	Artist string `yaml:"artist"`
	Album  string `yaml:"album"`
	Genre  string `yaml:"genre"`
}

// PlayCallback receives the chosen entry's url/info/mime, per spec
// §4.10's "media.play(id, cb) which invokes cb(url, info, mime)".
type PlayCallback func(url string, info Entry, mime string)

// Options bundles the filter/list query parameters of spec §4.11's
// `list`/`filter` RPC methods.
type Options struct {
	Keyword string
	Title   string
	Artist  string
	Album   string
	Genre   string
	First   int
	Max     int
	Random  bool
	Loop    bool
}

// Catalog is the interface the player consumes. A real implementation
// would serialize internally (spec §5: "the media catalog is accessed
// only through its own interface and is expected to serialise
// internally").
type Catalog interface {
	// Next returns the id that should play after current, honoring
	// Options.Random/Loop.
	Next(current int, opts Options) (int, bool)
	// Play looks up id and invokes cb synchronously with its url/mime.
	Play(id int, cb PlayCallback) error
	// Insert adds (or advertises, per spec §4.4 step 3) a candidate
	// entry discovered by the demux from a suggested RTP session.
	Insert(e Entry) (int, error)
	// Get returns one entry.
	Get(id int) (Entry, error)
	// SetInfo updates an entry's metadata fields.
	SetInfo(id int, e Entry) error
	// List returns entries in [first, first+max).
	List(first, max int) []Entry
	// Filter returns entries matching opts.
	Filter(opts Options) []Entry
	// Remove deletes an entry by id.
	Remove(id int) error
	// Append adds entries, returning their assigned ids.
	Append(entries []Entry) []int
	// Count returns the number of entries.
	Count() int
}

// Memory is an in-memory Catalog, optionally seeded from a YAML fixture
// (internal/mediadb's on-disk import/export format — not a database
// engine, just the seed/dump shape).
type Memory struct {
	mu      sync.RWMutex
	entries map[int]Entry
	order   []int
	nextID  int
}

// NewMemory builds an empty catalog.
func NewMemory() *Memory {
	return &Memory{entries: make(map[int]Entry), nextID: 1}
}

// LoadYAML seeds the catalog from a YAML document: a top-level list of
// Entry records.
func LoadYAML(data []byte) (*Memory, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	m := NewMemory()
	m.Append(entries)
	return m, nil
}

// DumpYAML serializes the catalog's current entries in id order.
func (m *Memory) DumpYAML() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return yaml.Marshal(out)
}

// Next returns the entry after current in insertion order (the first
// entry when current is not in the catalog), wrapping to the first entry
// only when opts.Loop is set. opts.Random is not consulted.
func (m *Memory) Next(current int, opts Options) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.order) == 0 {
		return 0, false
	}
	idx := -1
	for i, id := range m.order {
		if id == current {
			idx = i
			break
		}
	}
	next := idx + 1
	if next >= len(m.order) {
		if !opts.Loop {
			return 0, false
		}
		next = 0
	}
	return m.order[next], true
}

func (m *Memory) Play(id int, cb PlayCallback) error {
	e, err := m.Get(id)
	if err != nil {
		return err
	}
	cb(e.URL, e, e.Mime)
	return nil
}

func (m *Memory) Insert(e Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	e.ID = id
	m.entries[id] = e
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) Get(id int) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) SetInfo(id int, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	e.ID = id
	m.entries[id] = e
	return nil
}

func (m *Memory) List(first, max int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if first >= len(m.order) {
		return nil
	}
	end := first + max
	if max <= 0 || end > len(m.order) {
		end = len(m.order)
	}
	out := make([]Entry, 0, end-first)
	for _, id := range m.order[first:end] {
		out = append(out, m.entries[id])
	}
	return out
}

func (m *Memory) Filter(opts Options) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, id := range m.order {
		e := m.entries[id]
		if opts.Keyword != "" && !containsFold(e.Title, opts.Keyword) && !containsFold(e.Artist, opts.Keyword) {
			continue
		}
		if opts.Title != "" && !containsFold(e.Title, opts.Title) {
			continue
		}
		if opts.Artist != "" && !containsFold(e.Artist, opts.Artist) {
			continue
		}
		if opts.Album != "" && !containsFold(e.Album, opts.Album) {
			continue
		}
		if opts.Genre != "" && !containsFold(e.Genre, opts.Genre) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *Memory) Remove(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Append(entries []Entry) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		id := m.nextID
		m.nextID++
		e.ID = id
		m.entries[id] = e
		m.order = append(m.order, id)
		ids = append(ids, id)
	}
	return ids
}

func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

var _ Catalog = (*Memory)(nil)
