// Package cache stores synthesized audio so repeating a phrase does not call
// the hosted engine again. It has an in-memory LRU (L1) in front of a
// persistent zstd-compressed disk cache (L2); disk hits are promoted to
// memory.
package cache
