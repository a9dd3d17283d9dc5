package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "cache.index"

	// Items smaller than this are stored uncompressed.
	compressThreshold = 1024
)

// Disk is an L2 cache that keeps items as files under one directory,
// compressed with zstd. The index survives restarts.
type Disk struct {
	dir      string
	capacity int64
	size     int64 // bytes on disk

	encoder *zstd.Encoder // nil when compression is off
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

// diskEntry is persisted with gob, so its fields are exported.
type diskEntry struct {
	Key          string
	File         string // base name inside dir
	Size         int64  // on disk
	OriginalSize int64
	Created      time.Time
	LastAccess   time.Time
	Hits         int64
	Compressed   bool
}

// NewDisk opens or creates a disk cache in dir. A compression level of 0
// stores new items uncompressed.
func NewDisk(dir string, capacity int64, compressionLevel int) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	var err error
	if compressionLevel > 0 {
		d.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Always able to read compressed entries written by an earlier run.
	d.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := d.loadIndex(); err != nil {
		d.index = make(map[string]*diskEntry)
	}
	for key, e := range d.index {
		if _, err := os.Stat(d.path(e.File)); err != nil {
			delete(d.index, key)
			continue
		}
		d.size += e.Size
	}
	return d, nil
}

// Get retrieves a value. Unreadable or corrupt files are dropped and
// reported as a miss.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(d.path(e.File))
	if err == nil && e.Compressed {
		data, err = d.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		d.removeEntry(e)
		d.stats.Misses++
		return nil, false
	}

	e.LastAccess = time.Now()
	e.Hits++
	d.stats.Hits++
	d.stats.LastAccess = e.LastAccess
	return data, true
}

// Put stores a value, evicting least recently used items to make room.
func (d *Disk) Put(key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, compressed := value, false
	if d.encoder != nil && len(value) > compressThreshold {
		if c := d.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data, compressed = c, true
		}
	}

	size := int64(len(data))
	if size > d.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := d.index[key]; ok {
		d.removeEntry(existing)
	}
	for d.size+size > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}

	file := fileName(key)
	if err := writeFileAtomic(d.path(file), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	d.index[key] = &diskEntry{
		Key:          key,
		File:         file,
		Size:         size,
		OriginalSize: int64(len(value)),
		Created:      now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	d.size += size
	return nil
}

// Delete removes an entry.
func (d *Disk) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.index[key]; ok {
		d.removeEntry(e)
	}
}

// Clear removes all entries and their files.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.index {
		_ = os.Remove(d.path(e.File))
	}
	d.index = make(map[string]*diskEntry)
	d.size = 0
	return d.saveIndex()
}

// Contains reports whether key is cached.
func (d *Disk) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.index[key]
	return ok
}

// Size returns the bytes used on disk.
func (d *Disk) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Stats returns cache statistics.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	stats.Capacity = d.capacity
	stats.Size = d.size
	stats.Items = int64(len(d.index))
	return stats
}

// Entries returns metadata for every entry, least recently used first.
func (d *Disk) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]Entry, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, Entry{
			Key:        e.Key,
			Size:       e.OriginalSize,
			Created:    e.Created,
			LastAccess: e.LastAccess,
			Hits:       e.Hits,
			Level:      LevelDisk,
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return a.LastAccess.Compare(b.LastAccess)
	})
	return entries
}

// RemoveOlderThan removes entries created before cutoff.
func (d *Disk) RemoveOlderThan(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for _, e := range d.index {
		if e.Created.Before(cutoff) {
			d.removeEntry(e)
			removed++
		}
	}
	return removed
}

// Flush writes the index to disk.
func (d *Disk) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveIndex()
}

// Close saves the index and releases the codecs.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.saveIndex()
	if d.encoder != nil {
		err = errors.Join(err, d.encoder.Close())
	}
	d.decoder.Close()
	return err
}

func (d *Disk) path(file string) string {
	return filepath.Join(d.dir, file)
}

// removeEntry must be called with the lock held.
func (d *Disk) removeEntry(e *diskEntry) {
	_ = os.Remove(d.path(e.File))
	delete(d.index, e.Key)
	d.size -= e.Size
}

// evictOldest must be called with the lock held.
func (d *Disk) evictOldest() {
	var oldest *diskEntry
	for _, e := range d.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest != nil {
		d.removeEntry(oldest)
		d.stats.Evictions++
		d.stats.LastEvict = time.Now()
	}
}

func (d *Disk) loadIndex() error {
	f, err := os.Open(d.path(indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck

	return gob.NewDecoder(f).Decode(&d.index)
}

func (d *Disk) saveIndex() error {
	f, err := os.CreateTemp(d.dir, indexFile+".*")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(d.index); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), d.path(indexFile))
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".cache"
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}
