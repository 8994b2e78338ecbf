//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// Builds tagged sqlite_vec load the extension into every sqlite3 connection,
// so SearchThoughts ranks with vec_distance_cosine instead of scanning.
func init() {
	vec.Auto()
}
