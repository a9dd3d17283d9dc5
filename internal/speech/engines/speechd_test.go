package engines

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
)

var markRe = regexp.MustCompile(`<mark name="([^"]+)"/>`)

// fakeDispatcher is a minimal SSIP server. It acknowledges every command
// and, when finish is set, replays the marks of each message followed by
// an END event.
type fakeDispatcher struct {
	t      *testing.T
	path   string
	ln     net.Listener
	finish bool

	mu       sync.Mutex
	commands []string
	data     []string
	canceled chan struct{}
}

func newFakeDispatcher(t *testing.T, finish bool) *fakeDispatcher {
	t.Helper()

	path := filepath.Join(t.TempDir(), "s.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDispatcher{t: t, path: path, ln: ln, finish: finish, canceled: make(chan struct{}, 1)}
	go d.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return d
}

func (d *fakeDispatcher) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDispatcher) handle(conn net.Conn) {
	defer conn.Close() //nolint:errcheck
	r := bufio.NewReader(conn)
	w := func(s string) { _, _ = io.WriteString(conn, s) }

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		d.mu.Lock()
		d.commands = append(d.commands, line)
		d.mu.Unlock()

		switch {
		case line == "SPEAK":
			w("230 OK RECEIVING DATA\r\n")
			var msg []string
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				l = strings.TrimRight(l, "\r\n")
				if l == "." {
					break
				}
				msg = append(msg, strings.TrimPrefix(l, "."))
			}
			data := strings.Join(msg, "\n")
			d.mu.Lock()
			d.data = append(d.data, data)
			d.mu.Unlock()
			w("225-7\r\n225 OK MESSAGE QUEUED\r\n")

			if d.finish {
				w("701-7\r\n701-1\r\n701 BEGIN\r\n")
				for _, m := range markRe.FindAllStringSubmatch(data, -1) {
					w(fmt.Sprintf("700-7\r\n700-1\r\n700-%s\r\n700 INDEX MARK\r\n", m[1]))
				}
				w("702-7\r\n702-1\r\n702 END\r\n")
			}
		case line == "CANCEL self":
			select {
			case d.canceled <- struct{}{}:
			default:
			}
			w("210 OK CANCELED\r\n")
		case line == "QUIT":
			w("231 HAPPY HACKING\r\n")
			return
		case strings.HasPrefix(line, "SET SELF SYNTHESIS_VOICE"):
			w("409 ERR UNKNOWN VOICE\r\n")
		default:
			w("200 OK\r\n")
		}
	}
}

func (d *fakeDispatcher) sent() ([]string, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...), append([]string(nil), d.data...)
}

func newTestSpeechd(path string) *Speechd {
	return NewSpeechd(SpeechdConfig{SocketPath: path, Timeout: time.Second, Logger: log.New(io.Discard)})
}

func collect(t *testing.T, pb speech.Playback) []karaoke.Event {
	t.Helper()
	var events []karaoke.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-pb.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("events channel not closed")
			return nil
		}
	}
}

func TestSpeechdSpeak(t *testing.T) {
	d := newFakeDispatcher(t, true)
	e := newTestSpeechd(d.path)

	opts := speech.DefaultOptions()
	opts.Speed = 1.5
	text := "Привет, мир! ok"

	pb, err := e.Speak(context.Background(), speech.Request{ID: "u1", Text: text, Options: opts})
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	events := collect(t, pb)
	want := []int{0, 8, 13}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		b, ok := ev.(karaoke.BoundaryEvent)
		if !ok {
			t.Fatalf("event %d = %T", i, ev)
		}
		if b.Utterance != "u1" || b.CharIndex != want[i] {
			t.Errorf("event %d = %+v, want index %d", i, b, want[i])
		}
	}

	<-pb.Done()
	if err := pb.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}

	commands, _ := d.sent()
	for _, c := range []string{
		"SET SELF NOTIFICATION ALL on",
		"SET SELF SSML_MODE on",
		"SET SELF LANGUAGE ru",
		"SET SELF RATE 50",
		"SET SELF PITCH 0",
		"SET SELF VOLUME 100",
		"SPEAK",
	} {
		if !contains(commands, c) {
			t.Errorf("command %q not sent; got %q", c, commands)
		}
	}
}

func TestSpeechdUnknownVoiceIsNotFatal(t *testing.T) {
	d := newFakeDispatcher(t, true)
	e := newTestSpeechd(d.path)

	opts := speech.DefaultOptions()
	opts.Voice = "nobody"
	pb, err := e.Speak(context.Background(), speech.Request{ID: "u1", Text: "hi", Options: opts})
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	collect(t, pb)
}

func TestSpeechdStop(t *testing.T) {
	d := newFakeDispatcher(t, false)
	e := newTestSpeechd(d.path)

	pb, err := e.Speak(context.Background(), speech.Request{ID: "u1", Text: "one two three", Options: speech.DefaultOptions()})
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	if err := pb.Pause(); err != nil {
		t.Errorf("Pause() error = %v", err)
	}
	if err := pb.Resume(); err != nil {
		t.Errorf("Resume() error = %v", err)
	}
	if err := pb.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if _, ok := <-pb.Events(); ok {
		t.Error("event delivered after Stop")
	}
	select {
	case <-pb.Done():
	default:
		t.Error("done not closed after Stop")
	}
	if pb.Err() != nil {
		t.Errorf("Err() after Stop = %v", pb.Err())
	}

	select {
	case <-d.canceled:
	case <-time.After(time.Second):
		t.Error("CANCEL not sent")
	}

	commands, _ := d.sent()
	if !contains(commands, "PAUSE self") || !contains(commands, "RESUME self") {
		t.Errorf("commands = %q", commands)
	}
}

func TestSpeechdUnavailable(t *testing.T) {
	e := newTestSpeechd(filepath.Join(t.TempDir(), "missing.sock"))

	if _, err := e.Speak(context.Background(), speech.Request{ID: "u1", Text: "hi", Options: speech.DefaultOptions()}); err == nil {
		t.Error("expected connection error")
	}
	if err := e.Available(context.Background()); err == nil {
		t.Error("Available() should fail")
	}
}

func TestBuildSSML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "<speak></speak>"},
		{"hi", `<speak><mark name="c0"/>hi</speak>`},
		{
			"a <b> & c",
			`<speak><mark name="c0"/>a <mark name="c2"/>&lt;b&gt; <mark name="c6"/>&amp; <mark name="c8"/>c</speak>`,
		},
		{"мир  да", `<speak><mark name="c0"/>мир  <mark name="c5"/>да</speak>`},
	}

	for _, tt := range tests {
		if got := BuildSSML(tt.in); got != tt.want {
			t.Errorf("BuildSSML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseMark(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"c0", 0, true},
		{"c42", 42, true},
		{" c7 ", 7, true},
		{"x7", 0, false},
		{"c", 0, false},
		{"c-1", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseMark(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseMark(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEncodeSSIPData(t *testing.T) {
	got := encodeSSIPData("line one\n.dot\nend")
	want := "line one\r\n..dot\r\nend\r\n."
	if got != want {
		t.Errorf("encodeSSIPData() = %q, want %q", got, want)
	}
}

func TestReadSSIPReply(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("700-1\r\n700-2\r\n700-c5\r\n700 INDEX MARK\r\n"))
	rep, err := readSSIPReply(r)
	if err != nil {
		t.Fatalf("readSSIPReply() error = %v", err)
	}
	if rep.code != 700 || rep.text != "INDEX MARK" || len(rep.lines) != 3 || rep.lines[2] != "c5" {
		t.Errorf("reply = %+v", rep)
	}

	if _, err := readSSIPReply(bufio.NewReader(strings.NewReader("oops\r\n"))); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestVolumeToSSIP(t *testing.T) {
	tests := map[float64]int{0: -100, 0.5: 0, 1: 100, 2: 100}
	for in, want := range tests {
		if got := volumeToSSIP(in); got != want {
			t.Errorf("volumeToSSIP(%v) = %d, want %d", in, got, want)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
