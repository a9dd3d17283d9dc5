// Package history keeps the list of phrases the user has spoken, newest
// first, in a JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"github.com/dgnsrekt/karaoke/internal/speech"
)

// MaxItems is the number of entries a store keeps.
const MaxItems = 100

// ErrNotFound is returned when no entry has the requested ID.
var ErrNotFound = errors.New("history item not found")

// Item is one spoken phrase.
type Item struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Language  string            `json:"language"`
	Engine    speech.EngineKind `json:"engine"`
	VoiceID   string            `json:"voice_id,omitempty"`
	VoiceName string            `json:"voice_name,omitempty"`
	CacheKey  string            `json:"cache_key,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	// Search is a case-insensitive substring of the text.
	Search   string
	Engine   speech.EngineKind
	Language string
	From     time.Time
	To       time.Time
}

// Match reports whether item passes the filter.
func (f Filter) Match(item Item) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(item.Text), strings.ToLower(f.Search)) {
		return false
	}
	if f.Engine != "" && item.Engine != f.Engine {
		return false
	}
	if f.Language != "" && !strings.EqualFold(item.Language, f.Language) {
		return false
	}
	if !f.From.IsZero() && item.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && item.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Store is a capped, newest-first history persisted as JSON. A Store with
// an empty path lives in memory only. It implements speech.Recorder.
type Store struct {
	path string
	max  int
	now  func() time.Time

	mu    sync.Mutex
	items []Item
}

// Open loads the history at path, creating an empty one if the file does
// not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, max: MaxItems, now: time.Now}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
	}
	if len(s.items) > s.max {
		s.items = s.items[:s.max]
	}
	return s, nil
}

// Add prepends item, assigning its ID and timestamp, and drops the oldest
// entries beyond MaxItems.
func (s *Store) Add(item Item) (Item, error) {
	item.ID = uuid.NewString()
	if item.Timestamp.IsZero() {
		item.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := append([]Item{item}, s.items...)
	if len(items) > s.max {
		items = items[:s.max]
	}
	if err := s.save(items); err != nil {
		return Item{}, err
	}
	s.items = items
	return item, nil
}

// Record adds a started utterance.
func (s *Store) Record(r speech.Record) error {
	_, err := s.Add(Item{
		Text:      r.Text,
		Language:  r.Language,
		Engine:    r.Engine,
		VoiceID:   r.Voice,
		CacheKey:  r.CacheKey,
		Timestamp: r.Time,
	})
	return err
}

// Get returns the entry with the given ID. A unique ID prefix is accepted.
func (s *Store) Get(id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(id)
	if err != nil {
		return Item{}, err
	}
	return s.items[i], nil
}

// Remove deletes the entry with the given ID or unique ID prefix.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(id)
	if err != nil {
		return err
	}
	items := slices.Delete(slices.Clone(s.items), i, i+1)
	if err := s.save(items); err != nil {
		return err
	}
	s.items = items
	return nil
}

// Clear removes every entry and the history file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove history: %w", err)
		}
	}
	s.items = nil
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// List returns the entries matching f, newest first.
func (s *Store) List(f Filter) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Item
	for _, item := range s.items {
		if f.Match(item) {
			out = append(out, item)
		}
	}
	return out
}

// Search ranks entries by how well their text fuzzy-matches query, best
// match first.
func (s *Store) Search(query string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(query) == "" {
		return slices.Clone(s.items)
	}
	matches := fuzzy.FindFrom(query, source(s.items))
	out := make([]Item, 0, len(matches))
	for _, m := range matches {
		out = append(out, s.items[m.Index])
	}
	return out
}

// Export writes the entries matching f to w as indented JSON.
func (s *Store) Export(w io.Writer, f Filter) error {
	items := s.List(f)
	if items == nil {
		items = []Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to export history: %w", err)
	}
	return nil
}

// find must be called with the lock held.
func (s *Store) find(id string) (int, error) {
	if id == "" {
		return -1, ErrNotFound
	}
	found := -1
	for i, item := range s.items {
		if item.ID == id {
			return i, nil
		}
		if strings.HasPrefix(item.ID, id) {
			if found >= 0 {
				return -1, fmt.Errorf("ambiguous history id %q", id)
			}
			found = i
		}
	}
	if found < 0 {
		return -1, ErrNotFound
	}
	return found, nil
}

// save must be called with the lock held.
func (s *Store) save(items []Item) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

type source []Item

func (s source) String(i int) string { return s[i].Text }
func (s source) Len() int            { return len(s) }
