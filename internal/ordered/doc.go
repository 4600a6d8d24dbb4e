// Package ordered provides a map whose enumeration order follows a priority
// computed from each key and value.
//
// Priorities live in a binary min-heap with exactly one record per key.
// Keys and Items sort those records on demand and cache the result until the
// next mutation. Entries with equal priority come out in whatever order the
// heap storage held them at the last rebuild; do not depend on it.
//
// A Map is not safe for concurrent use.
package ordered
