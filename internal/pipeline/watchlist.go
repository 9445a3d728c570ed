package pipeline

import (
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Watchlist holds the vendor and product names the operator cares about.
// Matching is exact (after case folding), never substring: "apache"
// matches the vendor "Apache" but not "Apache Software Foundation".
type Watchlist struct {
	Vendors  []string `yaml:"vendors"`
	Products []string `yaml:"products"`

	folded map[string]struct{}
}

var fold = cases.Fold()

// LoadWatchlist reads a YAML watchlist file.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "watchlist: read %s", path)
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, eris.Wrap(err, "watchlist: parse")
	}
	wl.index()
	return &wl, nil
}

// NewWatchlist builds a watchlist from in-memory entries.
func NewWatchlist(vendors, products []string) *Watchlist {
	wl := &Watchlist{Vendors: vendors, Products: products}
	wl.index()
	return wl
}

func (w *Watchlist) index() {
	w.folded = make(map[string]struct{}, len(w.Vendors)+len(w.Products))
	for _, v := range w.Vendors {
		if v != "" {
			w.folded[fold.String(v)] = struct{}{}
		}
	}
	for _, p := range w.Products {
		if p != "" {
			w.folded[fold.String(p)] = struct{}{}
		}
	}
}

// Matches reports whether any of the record's vendor or product values
// equals a watchlist entry. Records with no vendor/product data never
// match.
func (w *Watchlist) Matches(vendors, products []string) bool {
	if w == nil || len(w.folded) == 0 {
		return false
	}
	for _, v := range vendors {
		if _, ok := w.folded[fold.String(v)]; ok {
			return true
		}
	}
	for _, p := range products {
		if _, ok := w.folded[fold.String(p)]; ok {
			return true
		}
	}
	return false
}
