// Package stores holds the Redis-backed record stores for login attempts and
// code challenges. Records use versioned binary encodings; mutating
// operations that must serialize (step transitions, code attempt counters)
// run under WATCH transactions.
package stores
