package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrItemTooLarge is returned when an item exceeds the cache capacity.
var ErrItemTooLarge = errors.New("item too large for cache")

// Level represents the cache tier.
type Level int

const (
	// LevelMemory is the in-memory LRU (L1).
	LevelMemory Level = iota

	// LevelDisk is the persistent compressed cache (L2).
	LevelDisk
)

// String returns the string representation of the cache level.
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64

	LastAccess time.Time
	LastEvict  time.Time
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Entry describes a cached item.
type Entry struct {
	Key        string
	Size       int64 // Uncompressed size in bytes
	Created    time.Time
	LastAccess time.Time
	Hits       int64
	Level      Level
}

// Config holds configuration for a Manager.
type Config struct {
	// MemoryCapacity is the L1 size limit in bytes.
	MemoryCapacity int64

	// Dir holds the L2 files. An empty Dir disables the disk cache.
	Dir string

	// DiskCapacity is the L2 size limit in bytes (compressed).
	DiskCapacity int64

	// CompressionLevel is the zstd level (1-22); 0 stores files as is.
	CompressionLevel int

	// TTL removes entries older than this during cleanup; 0 keeps them.
	TTL time.Duration

	// CleanupInterval runs cleanup periodically; 0 disables it.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		Dir:              dir,
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Key builds a cache key from its parts: the hex sha256 of the parts joined
// by NUL bytes.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
