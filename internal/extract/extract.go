// Package extract parses individual product fields out of listing text.
// Every parser returns an error instead of panicking so callers can decide
// whether a field is optional or required.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoAmount is returned when no numeric amount can be located in the input.
var ErrNoAmount = errors.New("no amount found")

var (
	// 1.234,56 | 12,50 | 7.99 | 15
	amountPattern    = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?`)
	thousandsDotted  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	integerPattern   = regexp.MustCompile(`\d+`)
	numericSegment   = regexp.MustCompile(`^\d+$`)
	thousandReplacer = strings.NewReplacer(",", "", ".", "", " ", "")
)

// ParsePrice returns the first well-formed amount found in candidates, tried in
// order. Callers pass the node's own text first and its full text second, so a
// currency symbol split from the amount by markup never blocks extraction.
func ParsePrice(candidates ...string) (decimal.Decimal, error) {
	for _, c := range candidates {
		token := amountPattern.FindString(c)
		if token == "" {
			continue
		}
		return ParseAmount(token)
	}
	return decimal.Decimal{}, ErrNoAmount
}

// ParseAmount converts a pt-BR or plain decimal token into a Decimal. A decimal
// comma becomes a decimal point; dots before a comma are thousands separators.
func ParseAmount(token string) (decimal.Decimal, error) {
	token = strings.TrimSpace(token)
	switch {
	case strings.Contains(token, ","):
		token = strings.ReplaceAll(token, ".", "")
		token = strings.Replace(token, ",", ".", 1)
	case thousandsDotted.MatchString(token):
		token = strings.ReplaceAll(token, ".", "")
	}
	d, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", token, err)
	}
	return d, nil
}

// ParseInt parses an integer code such as a SKU, tolerating surrounding space.
func ParseInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse int %q: %w", raw, err)
	}
	return n, nil
}

// ParseDiscount reads the first integer in a discount badge ("15", "-15%").
func ParseDiscount(raw string) (int, error) {
	token := integerPattern.FindString(raw)
	if token == "" {
		return 0, ErrNoAmount
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("parse discount %q: %w", token, err)
	}
	return n, nil
}

// PageCountToken reads the page total from a pagination indicator. index picks
// the whitespace-separated token; negative values count from the end (-1 is the
// last token). Thousands separators are stripped before parsing.
func PageCountToken(text string, index int) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty pagination text")
	}
	if index < 0 {
		index = len(fields) + index
	}
	if index < 0 || index >= len(fields) {
		return 0, fmt.Errorf("pagination token %d out of range in %q", index, text)
	}
	token := thousandReplacer.Replace(fields[index])
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("parse page count %q: %w", fields[index], err)
	}
	return n, nil
}

// RefFromHref extracts the numeric product reference from a link's path.
// segment selects a path segment by index; a negative segment takes the first
// all-digit segment instead.
func RefFromHref(href string, segment int) (int64, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return 0, fmt.Errorf("parse href %q: %w", href, err)
	}
	parts := pathSegments(u.Path)
	if segment >= 0 {
		if segment >= len(parts) {
			return 0, fmt.Errorf("href %q has no path segment %d", href, segment)
		}
		return ParseInt(parts[segment])
	}
	for _, p := range parts {
		if numericSegment.MatchString(p) {
			return ParseInt(p)
		}
	}
	return 0, fmt.Errorf("href %q has no numeric segment", href)
}

// CategoryFromURL returns the last two path segments of a leaf category URL as
// (category, subcategory).
func CategoryFromURL(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	parts := pathSegments(u.Path)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[len(parts)-2], parts[len(parts)-1]
	}
}

func pathSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
