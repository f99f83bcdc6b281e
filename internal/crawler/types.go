package crawler

import (
	"time"

	"github.com/shopspring/decimal"
)

// KeyField names the record field used as the Record Store key.
type KeyField string

// Supported store keys.
const (
	KeyRef KeyField = "ref"
	KeySKU KeyField = "sku"
)

// Valid reports whether k is a known key field.
func (k KeyField) Valid() bool {
	return k == KeyRef || k == KeySKU
}

// ProductRecord is one scraped product observation.
type ProductRecord struct {
	Ref         Optional[int64]           `json:"ref"`
	SKU         Optional[int64]           `json:"sku"`
	Name        string                    `json:"name"`
	Price       Optional[decimal.Decimal] `json:"price"`
	Brand       Optional[string]          `json:"brand"`
	Discount    int                       `json:"discount"`
	Loyalty     bool                      `json:"loyalty"`
	Category    string                    `json:"category,omitempty"`
	Subcategory string                    `json:"subcategory,omitempty"`
	Site        string                    `json:"site"`
	URL         string                    `json:"url,omitempty"`
}

// Key returns the value of the requested key field, if present.
func (r ProductRecord) Key(field KeyField) (int64, bool) {
	switch field {
	case KeyRef:
		return r.Ref.Get()
	case KeySKU:
		return r.SKU.Get()
	default:
		return 0, false
	}
}

// KeyedRecord pairs a record with the key it was stored under.
type KeyedRecord struct {
	Key    int64         `json:"key"`
	Record ProductRecord `json:"record"`
}

// Category is one leaf category listing to paginate through.
type Category struct {
	Site        string `json:"site"`
	URL         string `json:"url"`
	Name        string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
}

// RunSummary describes one site's crawl, from frontier to final store size.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	Site              string    `json:"site"`
	KeyField          KeyField  `json:"key_field"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Categories        int       `json:"categories"`
	CategoriesSkipped int       `json:"categories_skipped"`
	Pages             int       `json:"pages"`
	PagesFailed       int       `json:"pages_failed"`
	Items             int       `json:"items"`
	Stored            int       `json:"stored"`
	Failed            int       `json:"failed"`
	Records           int       `json:"records"`
}

// Elapsed is the wall time of the run.
func (s RunSummary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
