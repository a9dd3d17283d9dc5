package karaoke

import "testing"

func TestSlice(t *testing.T) {
	tests := []struct {
		name string
		span Span
		want Segments
	}{
		{"middle", Span{"hello world", 6, 5}, Segments{"hello ", "world", ""}},
		{"start", Span{"hello world", 0, 5}, Segments{"", "hello", " world"}},
		{"empty highlight", Span{"hello world", 0, 0}, Segments{"", "", "hello world"}},
		{"multibyte", Span{"Привет мир", 7, 3}, Segments{"Привет ", "мир", ""}},
		{"clamped length", Span{"abc", 1, 10}, Segments{"a", "bc", ""}},
		{"clamped index", Span{"abc", 9, 1}, Segments{"abc", "", ""}},
		{"all zero", Span{}, Segments{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slice(tt.span)
			if got != tt.want {
				t.Errorf("Slice(%+v) = %+v, want %+v", tt.span, got, tt.want)
			}
		})
	}
}

func TestSliceLossless(t *testing.T) {
	text := "Съешь же ещё этих мягких французских булок, да выпей чаю."
	n := len([]rune(text))
	for i := 0; i <= n; i++ {
		for l := 0; i+l <= n; l++ {
			if got := Slice(Span{text, i, l}).String(); got != text {
				t.Fatalf("Slice(%d,%d) lost text: %q", i, l, got)
			}
		}
	}
}

func TestSegmentsMark(t *testing.T) {
	empty := Slice(Span{Text: "abc"})
	if got := empty.Mark(true); got != " " {
		t.Errorf("active empty mark = %q, want a single space", got)
	}
	if got := empty.Mark(false); got != "" {
		t.Errorf("inactive empty mark = %q, want empty", got)
	}
	word := Slice(Span{"abc def", 4, 3})
	if got := word.Mark(true); got != "def" {
		t.Errorf("mark = %q, want %q", got, "def")
	}
	// Repeated slicing yields the same pieces.
	if Slice(Span{"abc def", 4, 3}) != word {
		t.Error("Slice is not idempotent")
	}
}
