// Package export serializes a finished record store and ships it to blob
// storage, Postgres, and Pub/Sub.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/crawler"
)

// Columns returns the CSV header for a store keyed by key. The key column
// comes first and is not repeated among the record columns.
func Columns(key crawler.KeyField) []string {
	cols := []string{string(key)}
	for _, c := range []string{"ref", "sku"} {
		if c != string(key) {
			cols = append(cols, c)
		}
	}
	return append(cols, "name", "price", "brand", "discount", "loyalty", "category", "subcategory", "site", "url")
}

// WriteCSV writes records, already ordered by key, as delimited rows. Absent
// values are empty cells.
func WriteCSV(w io.Writer, key crawler.KeyField, records []crawler.KeyedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(key)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, kr := range records {
		if err := cw.Write(row(key, kr)); err != nil {
			return fmt.Errorf("write record %d: %w", kr.Key, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(key crawler.KeyField, kr crawler.KeyedRecord) []string {
	rec := kr.Record
	out := []string{strconv.FormatInt(kr.Key, 10)}
	if key != crawler.KeyRef {
		out = append(out, optionalInt(rec.Ref))
	}
	if key != crawler.KeySKU {
		out = append(out, optionalInt(rec.SKU))
	}
	price := ""
	if p, ok := rec.Price.Get(); ok {
		price = p.StringFixed(2)
	}
	return append(out,
		rec.Name,
		price,
		rec.Brand.OrElse(""),
		strconv.Itoa(rec.Discount),
		strconv.FormatBool(rec.Loyalty),
		rec.Category,
		rec.Subcategory,
		rec.Site,
		rec.URL,
	)
}

func optionalInt(o crawler.Optional[int64]) string {
	v, ok := o.Get()
	if !ok {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
