// Package crawler defines the domain types and collaborator interfaces shared by
// the catalog traversal engine, the site extractors, and the export pipeline.
package crawler
