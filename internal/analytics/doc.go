// Package analytics scores, tags and aggregates merged community posts.
//
// Everything here is pure: the reference tables are loaded once from embedded
// YAML and never mutated, and every function returns new slices in a
// deterministic order.
package analytics

import "embed"

//go:embed data/*.yaml
var dataFS embed.FS
