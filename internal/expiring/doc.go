// Package expiring provides a map whose entries expire a fixed duration after
// their last successful read or write (sliding expiration).
//
// Expiry is lazy: an expired entry is only discovered, and evicted, when it
// is touched. A Map is not safe for concurrent use; callers that share one
// across goroutines must serialize access themselves.
package expiring
