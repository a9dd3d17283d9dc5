package engines

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
)

// SSIP reply codes for asynchronous events.
const (
	ssipIndexMark = 700
	ssipBegin     = 701
	ssipEnd       = 702
	ssipCanceled  = 703
	ssipPaused    = 704
	ssipResumed   = 705
)

// markPrefix prefixes the SSML mark names; the rest is a rune offset.
const markPrefix = "c"

const defaultCommandTimeout = 5 * time.Second

// SpeechdConfig holds configuration for the Speech Dispatcher engine.
type SpeechdConfig struct {
	// SocketPath is the SSIP unix socket. Defaults to SPEECHD_ADDRESS or the
	// per-user socket under XDG_RUNTIME_DIR.
	SocketPath string

	// ClientName identifies the client to the dispatcher.
	ClientName string

	// Timeout for connecting and for each command (defaults to 5s).
	Timeout time.Duration

	Logger *log.Logger
}

// Speechd speaks through Speech Dispatcher. Word boundaries come from SSML
// index marks placed before every word.
type Speechd struct {
	socket  string
	client  string
	timeout time.Duration
	log     *log.Logger
}

// NewSpeechd creates a new Speech Dispatcher engine. Each utterance uses its
// own connection, so nothing is dialed until Speak.
func NewSpeechd(config SpeechdConfig) *Speechd {
	if config.SocketPath == "" {
		config.SocketPath = DefaultSpeechdSocket()
	}
	if config.ClientName == "" {
		config.ClientName = "karaoke"
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultCommandTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Speechd{
		socket:  config.SocketPath,
		client:  config.ClientName,
		timeout: config.Timeout,
		log:     logger.WithPrefix("speechd"),
	}
}

// DefaultSpeechdSocket returns the socket Speech Dispatcher listens on for
// the current user.
func DefaultSpeechdSocket() string {
	if addr := os.Getenv("SPEECHD_ADDRESS"); addr != "" {
		if path, ok := strings.CutPrefix(addr, "unix_socket:"); ok {
			return path
		}
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "speech-dispatcher", "speechd.sock")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "speech-dispatcher", "speechd.sock")
	}
	return filepath.Join(os.TempDir(), "speech-dispatcher", "speechd.sock")
}

// Socket returns the socket path the engine dials.
func (e *Speechd) Socket() string { return e.socket }

// Name implements speech.NativeEngine.
func (e *Speechd) Name() string { return "speechd" }

// Close implements speech.NativeEngine.
func (e *Speechd) Close() error { return nil }

// Speak sends req.Text as SSML and returns a playback whose boundary events
// carry rune offsets into req.Text.
func (e *Speechd) Speak(ctx context.Context, req speech.Request) (speech.Playback, error) {
	dialCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "unix", e.socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to speech-dispatcher at %s: %w", e.socket, err)
	}

	p := newSpeechdPlayback(req.ID, conn, e.timeout, e.log)
	if err := p.start(ctx, e.client, req); err != nil {
		_ = p.Stop()
		return nil, err
	}
	return p, nil
}

// SSIPError is a non-2xx reply to an SSIP command.
type SSIPError struct {
	Command string
	Code    int
	Text    string
}

func (e *SSIPError) Error() string {
	return fmt.Sprintf("speech-dispatcher: %s: %d %s", e.Command, e.Code, e.Text)
}

// ssipReply is one SSIP reply: continuation lines plus the final line.
type ssipReply struct {
	code  int
	lines []string
	text  string
}

func readSSIPReply(r *bufio.Reader) (ssipReply, error) {
	var rep ssipReply
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return rep, err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 {
			return rep, fmt.Errorf("malformed SSIP line %q", line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return rep, fmt.Errorf("malformed SSIP line %q", line)
		}
		rep.code = code
		if line[3] == '-' {
			rep.lines = append(rep.lines, line[4:])
			continue
		}
		rep.text = line[4:]
		return rep, nil
	}
}

// speechdPlayback is one utterance on its own SSIP connection. The reader
// goroutine owns the events channel and closes it on exit.
type speechdPlayback struct {
	id      string
	conn    net.Conn
	timeout time.Duration
	log     *log.Logger

	writeMu sync.Mutex
	replies chan ssipReply
	events  chan karaoke.Event
	done    chan struct{}
	stop    chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup

	mu  sync.Mutex
	err error
}

func newSpeechdPlayback(id string, conn net.Conn, timeout time.Duration, logger *log.Logger) *speechdPlayback {
	p := &speechdPlayback{
		id:      id,
		conn:    conn,
		timeout: timeout,
		log:     logger,
		replies: make(chan ssipReply, 1),
		events:  make(chan karaoke.Event),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.read()
	return p
}

func (p *speechdPlayback) start(ctx context.Context, client string, req speech.Request) error {
	opts := req.Options
	setup := []string{
		"SET SELF CLIENT_NAME " + strings.Join([]string{os.Getenv("USER"), client, "main"}, ":"),
		"SET SELF NOTIFICATION ALL on",
		"SET SELF SSML_MODE on",
		"SET SELF LANGUAGE " + opts.BaseLanguage(),
		"SET SELF RATE " + strconv.Itoa(speech.SpeedToRate(opts.Speed)),
		"SET SELF PITCH " + strconv.Itoa(speech.PitchToRate(opts.Pitch)),
		"SET SELF VOLUME " + strconv.Itoa(volumeToSSIP(opts.Volume)),
	}
	for _, cmd := range setup {
		if _, err := p.command(ctx, cmd); err != nil {
			return err
		}
	}

	if opts.Voice != "" {
		if _, err := p.command(ctx, "SET SELF SYNTHESIS_VOICE "+opts.Voice); err != nil {
			p.log.Warn("voice not available", "voice", opts.Voice, "err", err)
		}
	}

	rep, err := p.command(ctx, "SPEAK")
	if err != nil {
		return err
	}
	if rep.code != 230 {
		return &SSIPError{Command: "SPEAK", Code: rep.code, Text: rep.text}
	}

	if _, err := p.command(ctx, encodeSSIPData(BuildSSML(req.Text))); err != nil {
		return err
	}
	return nil
}

// command sends one command line and waits for its reply.
func (p *speechdPlayback) command(ctx context.Context, line string) (ssipReply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.write(line); err != nil {
		return ssipReply{}, err
	}

	name := line
	if strings.ContainsAny(name, "\r\n") {
		name = "data"
	}

	select {
	case rep, ok := <-p.replies:
		if !ok {
			return ssipReply{}, fmt.Errorf("speech-dispatcher: %s: connection closed", name)
		}
		if rep.code < 200 || rep.code > 299 {
			return rep, &SSIPError{Command: name, Code: rep.code, Text: rep.text}
		}
		return rep, nil
	case <-ctx.Done():
		return ssipReply{}, fmt.Errorf("speech-dispatcher: %s: %w", name, ctx.Err())
	}
}

func (p *speechdPlayback) write(line string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if _, err := io.WriteString(p.conn, line+"\r\n"); err != nil {
		return fmt.Errorf("speech-dispatcher: write failed: %w", err)
	}
	return nil
}

func (p *speechdPlayback) read() {
	defer p.wg.Done()
	defer close(p.done)
	defer close(p.events)
	defer close(p.replies)

	br := bufio.NewReader(p.conn)
	for {
		rep, err := readSSIPReply(br)
		if err != nil {
			if !p.stopping() {
				p.setErr(fmt.Errorf("speech-dispatcher connection lost: %w", err))
			}
			return
		}

		if rep.code < 700 || rep.code > 799 {
			select {
			case p.replies <- rep:
			case <-p.stop:
				return
			}
			continue
		}

		switch rep.code {
		case ssipIndexMark:
			if len(rep.lines) == 0 {
				continue
			}
			idx, ok := parseMark(rep.lines[len(rep.lines)-1])
			if !ok {
				continue
			}
			if !p.send(karaoke.BoundaryEvent{Utterance: p.id, CharIndex: idx}) {
				return
			}
		case ssipEnd, ssipCanceled:
			p.log.Debug("utterance ended", "id", p.id, "event", rep.text)
			_ = p.write("QUIT")
			_ = p.conn.Close()
			return
		case ssipBegin, ssipPaused, ssipResumed:
			p.log.Debug("speech event", "id", p.id, "event", rep.text)
		}
	}
}

func (p *speechdPlayback) send(ev karaoke.Event) bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.stop:
		return false
	}
}

func (p *speechdPlayback) stopping() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *speechdPlayback) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *speechdPlayback) Events() <-chan karaoke.Event { return p.events }

func (p *speechdPlayback) Done() <-chan struct{} { return p.done }

func (p *speechdPlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *speechdPlayback) Pause() error {
	_, err := p.command(context.Background(), "PAUSE self")
	return err
}

func (p *speechdPlayback) Resume() error {
	_, err := p.command(context.Background(), "RESUME self")
	return err
}

func (p *speechdPlayback) Stop() error {
	p.stopOnce.Do(func() {
		close(p.stop)
		_ = p.write("CANCEL self")
		_ = p.write("QUIT")
		_ = p.conn.Close()
		p.wg.Wait()
	})
	return nil
}

// BuildSSML wraps text in a speak element with a mark before every word.
// Mark names carry the rune offset of the word in text.
func BuildSSML(text string) string {
	var b strings.Builder
	b.WriteString("<speak>")
	inWord := false
	for i, r := range []rune(text) {
		if unicode.IsSpace(r) {
			inWord = false
			b.WriteByte(' ')
			continue
		}
		if !inWord {
			b.WriteString(`<mark name="` + markPrefix + strconv.Itoa(i) + `"/>`)
			inWord = true
		}
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("</speak>")
	return b.String()
}

func parseMark(name string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(name), markPrefix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// encodeSSIPData turns a message into the SSIP data block: CRLF line ends,
// leading dots doubled and the terminating dot line. The trailing CRLF is
// added by write.
func encodeSSIPData(msg string) string {
	lines := strings.Split(strings.ReplaceAll(msg, "\r\n", "\n"), "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, ".") {
			lines[i] = "." + l
		}
	}
	return strings.Join(lines, "\r\n") + "\r\n."
}

// volumeToSSIP maps 0.0..1.0 onto the SSIP -100..100 volume scale.
func volumeToSSIP(v float64) int {
	return max(-100, min(100, int(v*200-100)))
}

// ErrSpeechdUnavailable is returned by Available when the dispatcher
// socket cannot be reached.
var ErrSpeechdUnavailable = errors.New("speech-dispatcher not available")

// Available reports whether the dispatcher socket accepts connections.
func (e *Speechd) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", e.socket)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpeechdUnavailable, err)
	}
	return conn.Close()
}
