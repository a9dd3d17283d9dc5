package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/karaoke/internal/speech"
)

var _ speech.Recorder = (*Store)(nil)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history", "history.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, path
}

func TestStoreAddPersist(t *testing.T) {
	s, path := openTemp(t)

	first, err := s.Add(Item{Text: "Привет", Language: "ru-RU", Engine: speech.EngineNative})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if first.ID == "" || first.Timestamp.IsZero() {
		t.Errorf("Add() did not assign id and timestamp: %+v", first)
	}
	second, _ := s.Add(Item{Text: "Hello", Language: "en-US", Engine: speech.EngineNeural})

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	items := reopened.List(Filter{})
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != second.ID || items[1].ID != first.ID {
		t.Error("history is not newest first")
	}
}

func TestStoreCap(t *testing.T) {
	s, _ := openTemp(t)
	for i := 0; i < MaxItems+5; i++ {
		if _, err := s.Add(Item{Text: fmt.Sprintf("phrase %d", i)}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if s.Len() != MaxItems {
		t.Errorf("Len() = %d, want %d", s.Len(), MaxItems)
	}
	items := s.List(Filter{})
	if items[0].Text != fmt.Sprintf("phrase %d", MaxItems+4) {
		t.Errorf("newest = %q", items[0].Text)
	}
	if items[len(items)-1].Text != "phrase 5" {
		t.Errorf("oldest = %q, want phrase 5", items[len(items)-1].Text)
	}
}

func TestStoreRecord(t *testing.T) {
	s, _ := Open("")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := s.Record(speech.Record{
		Text:     "hi",
		Language: "en-US",
		Engine:   speech.EngineNeural,
		Voice:    "voice-1",
		CacheKey: "abc",
		Time:     at,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	item := s.List(Filter{})[0]
	if item.VoiceID != "voice-1" || item.CacheKey != "abc" || !item.Timestamp.Equal(at) {
		t.Errorf("recorded item = %+v", item)
	}
}

func TestStoreGetRemove(t *testing.T) {
	s, path := openTemp(t)
	a, _ := s.Add(Item{Text: "a"})
	b, _ := s.Add(Item{Text: "b"})

	got, err := s.Get(a.ID[:8])
	if err != nil || got.ID != a.ID {
		t.Errorf("Get(prefix) = %+v, %v", got, err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v", err)
	}
	if _, err := s.Get(""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(\"\") error = %v", err)
	}

	if err := s.Remove(a.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v", err)
	}

	reopened, _ := Open(path)
	items := reopened.List(Filter{})
	if len(items) != 1 || items[0].ID != b.ID {
		t.Errorf("after Remove: %+v", items)
	}
}

func TestStoreClear(t *testing.T) {
	s, path := openTemp(t)
	_, _ = s.Add(Item{Text: "a"})

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Clear", s.Len())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("history file still exists")
	}
	if err := s.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestFilter(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	item := Item{Text: "Привет, Мир", Language: "ru-RU", Engine: speech.EngineFallback, Timestamp: day(10)}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"search case-insensitive", Filter{Search: "мир"}, true},
		{"search miss", Filter{Search: "hello"}, false},
		{"engine", Filter{Engine: speech.EngineFallback}, true},
		{"other engine", Filter{Engine: speech.EngineNative}, false},
		{"language", Filter{Language: "ru-ru"}, true},
		{"other language", Filter{Language: "en-US"}, false},
		{"within range", Filter{From: day(1), To: day(20)}, true},
		{"before range", Filter{From: day(11)}, false},
		{"after range", Filter{To: day(9)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(item); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoreSearch(t *testing.T) {
	s, _ := Open("")
	for _, text := range []string{"good morning", "hello world", "xyz"} {
		_, _ = s.Add(Item{Text: text})
	}

	got := s.Search("hlo")
	if len(got) != 1 || got[0].Text != "hello world" {
		t.Errorf("Search(hlo) = %+v", got)
	}
	if got := s.Search(""); len(got) != 3 {
		t.Errorf("Search(\"\") returned %d items, want all", len(got))
	}
	if got := s.Search("qqq"); len(got) != 0 {
		t.Errorf("Search(qqq) = %+v", got)
	}
}

func TestStoreExport(t *testing.T) {
	s, _ := Open("")
	_, _ = s.Add(Item{Text: "one", Engine: speech.EngineNative})
	_, _ = s.Add(Item{Text: "two", Engine: speech.EngineNeural})

	var buf bytes.Buffer
	if err := s.Export(&buf, Filter{Engine: speech.EngineNeural}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var items []Item
	if err := json.Unmarshal(buf.Bytes(), &items); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(items) != 1 || items[0].Text != "two" {
		t.Errorf("exported %+v", items)
	}

	buf.Reset()
	_ = s.Export(&buf, Filter{Search: "none"})
	if got := bytes.TrimSpace(buf.Bytes()); string(got) != "[]" {
		t.Errorf("empty export = %s, want []", got)
	}
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt history")
	}
}
