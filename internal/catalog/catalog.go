// Package catalog builds and persists the numbered channel catalog: the
// ordered probe results that form the tuner's lineup.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/plexiptv/tuner/internal/probe"
	"github.com/plexiptv/tuner/internal/store"
)

// ErrNoCatalog is returned when the catalog has not been generated yet.
// Callers surface it with an instruction to run the probe first.
var ErrNoCatalog = errors.New("no catalog: run the probe to generate one")

// Catalog is the device lineup document. Replaced wholesale on re-probe;
// never partially updated.
type Catalog struct {
	Date    time.Time      `json:"date"`
	Results []probe.Result `json:"results"`
}

// Successful returns the results that probed OK, in catalog order.
func (c *Catalog) Successful() []probe.Result {
	out := make([]probe.Result, 0, len(c.Results))
	for _, r := range c.Results {
		if r.OK {
			out = append(out, r)
		}
	}
	return out
}

// FindByURL returns the result whose track URL exactly matches url, or nil.
func (c *Catalog) FindByURL(url string) *probe.Result {
	for i := range c.Results {
		if c.Results[i].Track.URL == url {
			return &c.Results[i]
		}
	}
	return nil
}

// Save persists the catalog as one document.
func (c *Catalog) Save(st *store.Store) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	return st.Put(store.KeyCatalog, data)
}

// Load reads the persisted catalog, or ErrNoCatalog when absent.
func Load(st *store.Store) (*Catalog, error) {
	data, err := st.Get(store.KeyCatalog)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoCatalog
	}
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	return &c, nil
}
