// Package internal holds cross-cutting primitives shared by the engine and
// its stores: random token generation and one-time code hashing.
package internal
