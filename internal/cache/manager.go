package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager coordinates the memory and disk caches: lookups go through L1
// then L2, disk hits are promoted to memory, and a background routine
// expires old entries. It implements speech.Cache.
type Manager struct {
	memory *Memory
	disk   *Disk // nil when Config.Dir is empty
	ttl    time.Duration
	logger *log.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates statistics over both levels.
type ManagerStats struct {
	Hits        int64
	Misses      int64
	MemoryHits  int64
	DiskHits    int64
	Promotions  int64
	CleanupRuns int64
	LastCleanup time.Time

	Memory Stats
	Disk   Stats
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s ManagerStats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// NewManager creates a cache manager. A nil logger uses the default logger.
func NewManager(config Config, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	if config.MemoryCapacity <= 0 {
		return nil, errors.New("memory capacity must be positive")
	}

	m := &Manager{
		memory: NewMemory(config.MemoryCapacity),
		ttl:    config.TTL,
		logger: logger.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}

	if config.Dir != "" {
		if config.DiskCapacity <= 0 {
			return nil, errors.New("disk capacity must be positive")
		}
		disk, err := NewDisk(config.Dir, config.DiskCapacity, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = disk
	}

	if config.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop(config.CleanupInterval)
	}
	return m, nil
}

// Get looks key up in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		m.mu.Lock()
		m.stats.Hits++
		m.stats.MemoryHits++
		m.mu.Unlock()
		return data, true
	}

	if m.disk != nil {
		if data, ok := m.disk.Get(key); ok {
			promoted := m.memory.Put(key, data) == nil

			m.mu.Lock()
			m.stats.Hits++
			m.stats.DiskHits++
			if promoted {
				m.stats.Promotions++
			}
			m.mu.Unlock()
			return data, true
		}
	}

	m.mu.Lock()
	m.stats.Misses++
	m.mu.Unlock()
	return nil, false
}

// Put stores value in memory and on disk. An item too large for one level
// is still stored in the other.
func (m *Manager) Put(key string, value []byte) error {
	memErr := m.memory.Put(key, value)
	if memErr != nil && !errors.Is(memErr, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", memErr)
	}
	if m.disk == nil {
		return memErr
	}

	diskErr := m.disk.Put(key, value)
	switch {
	case diskErr == nil:
		return nil
	case errors.Is(diskErr, ErrItemTooLarge) && memErr == nil:
		m.logger.Debug("item too large for disk cache", "size", len(value))
		return nil
	case errors.Is(diskErr, ErrItemTooLarge):
		return ErrItemTooLarge
	default:
		return fmt.Errorf("disk cache: %w", diskErr)
	}
}

// Delete removes key from both levels.
func (m *Manager) Delete(key string) {
	m.memory.Delete(key)
	if m.disk != nil {
		m.disk.Delete(key)
	}
}

// Clear removes every entry from both levels.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if m.disk != nil {
		if err := m.disk.Clear(); err != nil {
			return fmt.Errorf("failed to clear disk cache: %w", err)
		}
	}
	return nil
}

// Stats returns aggregated statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := m.stats
	m.mu.Unlock()

	stats.Memory = m.memory.Stats()
	if m.disk != nil {
		stats.Disk = m.disk.Stats()
	}
	return stats
}

// Cleanup expires entries older than the TTL and persists the disk index.
// It returns the number of removed entries.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	m.stats.CleanupRuns++
	m.stats.LastCleanup = time.Now()
	m.mu.Unlock()

	removed := 0
	if m.ttl > 0 {
		removed += m.memory.Prune(m.ttl)
		if m.disk != nil {
			removed += m.disk.RemoveOlderThan(time.Now().Add(-m.ttl))
		}
	}
	if m.disk != nil {
		if err := m.disk.Flush(); err != nil {
			m.logger.Warn("failed to save cache index", "err", err)
		}
	}
	if removed > 0 {
		m.logger.Debug("expired cache entries", "count", removed)
	}
	return removed
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}

// Close stops the cleanup routine and saves the disk index.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
		if m.disk != nil {
			if cerr := m.disk.Close(); cerr != nil {
				err = fmt.Errorf("failed to close disk cache: %w", cerr)
			}
		}
	})
	return err
}
