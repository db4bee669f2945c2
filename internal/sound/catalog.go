// Package sound resolves and plays alert sounds on crew consoles.
package sound

import (
	"fmt"
	"strings"
)

// Entry describes one alert sound asset.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Catalog is an ordered, immutable list of sounds. Order decides fallback priority.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// NewCatalog validates entries and builds a catalog.
func NewCatalog(entries ...Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("sound catalog: at least one entry is required")
	}

	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, entry := range entries {
		entry.ID = strings.TrimSpace(entry.ID)
		entry.Path = strings.TrimSpace(entry.Path)
		if entry.ID == "" || entry.Path == "" {
			return nil, fmt.Errorf("sound catalog: id and path are required")
		}
		if _, exists := c.index[entry.ID]; exists {
			return nil, fmt.Errorf("sound catalog: duplicate id %q", entry.ID)
		}
		if entry.Name == "" {
			entry.Name = entry.ID
		}
		c.index[entry.ID] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c, nil
}

// DefaultCatalog returns the sounds shipped with the server.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Entry{ID: "chime", Name: "Chime", Path: "chime.wav"},
		Entry{ID: "bell", Name: "Ship's Bell", Path: "bell.wav"},
		Entry{ID: "horn", Name: "Horn", Path: "horn.wav"},
		Entry{ID: "ping", Name: "Ping", Path: "ping.wav"},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Entries returns the catalog in priority order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// IDs returns every sound id in priority order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.entries))
	for i, entry := range c.entries {
		ids[i] = entry.ID
	}
	return ids
}

// Lookup finds a sound by id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	i, ok := c.index[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}
