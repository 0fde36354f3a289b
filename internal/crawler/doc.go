// Package crawler defines the types and interfaces shared by the crawl, parse and analytics
// stages: platform adapters, fetchers, raw and normalized documents, error events and runs.
package crawler
