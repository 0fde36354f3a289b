// Package store holds the in-memory accumulators shared by crawl workers. Both
// structures are safe for concurrent use and only ever grow during a run.
package store
