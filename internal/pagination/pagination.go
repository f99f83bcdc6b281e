// Package pagination resolves how many listing pages a category spans.
package pagination

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/grocery-catalog-crawler/internal/extract"
)

// Rule describes where the page total lives in a pagination indicator.
type Rule struct {
	// TokenIndex selects the whitespace-separated token holding the total.
	// Negative values count from the end.
	TokenIndex int
	// MaxPages clamps the resolved count when > 0.
	MaxPages int
}

// Resolution is the outcome of resolving a category's page count.
type Resolution struct {
	Pages     int
	Defaulted bool  // indicator absent, timed out, or unreadable
	Clamped   bool  // count exceeded MaxPages
	Cause     error // why the count defaulted, nil otherwise
}

// Resolve turns the indicator text (or the error from looking it up) into a
// page count. It never fails: any problem yields a single page.
func (r Rule) Resolve(text string, lookupErr error) Resolution {
	if lookupErr != nil {
		return Resolution{Pages: 1, Defaulted: true, Cause: classify(lookupErr)}
	}
	n, err := extract.PageCountToken(text, r.TokenIndex)
	if err != nil {
		return Resolution{Pages: 1, Defaulted: true, Cause: err}
	}
	if n < 1 {
		return Resolution{Pages: 1, Defaulted: true, Cause: fmt.Errorf("non-positive page count %d", n)}
	}
	if r.MaxPages > 0 && n > r.MaxPages {
		return Resolution{Pages: r.MaxPages, Clamped: true}
	}
	return Resolution{Pages: n}
}

func classify(err error) error {
	switch {
	case errors.Is(err, crawler.ErrTimeout), errors.Is(err, crawler.ErrNotFound):
		return err
	default:
		return fmt.Errorf("lookup pagination indicator: %w", err)
	}
}
