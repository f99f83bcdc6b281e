// Package progress carries crawl milestones (run, category, page) from the
// engine to pluggable sinks. Emitting never blocks the crawl: events are
// buffered and flushed in batches on a background goroutine.
package progress
