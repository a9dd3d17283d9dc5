// Package ui provides the karaoke reader: a pager that speaks its text and
// highlights the word being voiced.
package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
	"github.com/dgnsrekt/karaoke/internal/textsrc"
)

const (
	statusBarHeight      = 1
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"

	// DefaultScrollMargin is how many rows the highlight may come to the
	// edge of the pager before it scrolls.
	DefaultScrollMargin = 1
)

// Speaker is the part of speech.Speaker the reader drives.
type Speaker interface {
	Speak(ctx context.Context, text string, opts speech.Options) (*speech.Utterance, error)
	Pause() error
	Resume() error
	Stop() error
}

// NewProgram returns a new Tea program reading cfg.Source aloud.
func NewProgram(ctx context.Context, cfg Config, s Speaker) *tea.Program {
	log.Debug(
		"Starting karaoke",
		"engine", cfg.Options.Engine,
		"autoplay", cfg.Autoplay,
		"align", cfg.Scroll.Align,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(ctx, cfg, s), opts...)
}

type (
	speakMsg struct {
		utterance *speech.Utterance
		err       error
	}
	progressMsg struct{ event karaoke.Event }
	doneMsg     struct {
		id  string
		err error
	}
	controlMsg struct {
		action string
		err    error
	}
	playMsg                 struct{}
	reloadMsg               struct{}
	statusMessageTimeoutMsg struct{}
)

// playState is where the reader is in speaking its text.
type playState int

const (
	stateIdle playState = iota
	stateWaiting
	statePlaying
	statePaused
	stateFinished
	stateFailed
)

func (s playState) String() string {
	return map[playState]string{
		stateIdle:     "Ready",
		stateWaiting:  "Synthesizing",
		statePlaying:  "Speaking",
		statePaused:   "Paused",
		stateFinished: "Done",
		stateFailed:   "Failed",
	}[s]
}

type model struct {
	cfg     Config
	ctx     context.Context
	speaker Speaker
	opts    speech.Options

	src  *textsrc.Source
	text string

	utterance *speech.Utterance
	session   *karaoke.Session
	highlight karaoke.Highlight
	state     playState
	err       error

	layout   layout
	style    lipgloss.Style
	scroller *karaoke.Scroller
	viewport viewport.Model
	spinner  spinner.Model

	width    int
	height   int
	ready    bool
	showHelp bool

	statusMessage      string
	statusMessageTimer *time.Timer

	watcher *fsnotify.Watcher
}

func newModel(ctx context.Context, cfg Config, s Speaker) model {
	if cfg.Scroll == (karaoke.ScrollConfig{}) {
		cfg.Scroll = karaoke.ScrollConfig{Align: karaoke.AlignCenter, Margin: DefaultScrollMargin}
	}
	src := cfg.Source
	if src == nil {
		src = &textsrc.Source{}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(fuchsia)

	m := model{
		cfg:       cfg,
		ctx:       ctx,
		speaker:   s,
		opts:      cfg.Options,
		src:       src,
		text:      src.Text,
		highlight: karaoke.Highlight{Span: karaoke.Span{Text: src.Text}},
		style:     highlightStyle(cfg.HighlightColor),
		scroller:  karaoke.NewScroller(cfg.Scroll),
		viewport:  viewport.New(0, 0),
		spinner:   sp,
	}
	if src.IsFile() {
		m.initWatcher()
	}
	return m
}

func (m model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.watcher != nil {
		cmds = append(cmds, watchFile(m.watcher, m.src.Location))
	}
	if m.cfg.Autoplay {
		cmds = append(cmds, func() tea.Msg { return playMsg{} })
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.shutdown()
			return m, tea.Quit

		case " ":
			switch m.state { //nolint:exhaustive
			case statePlaying:
				m.state = statePaused
				return m, control(m.speaker.Pause, "pause")
			case statePaused:
				m.state = statePlaying
				return m, control(m.speaker.Resume, "resume")
			case stateWaiting:
				return m, nil
			default:
				return m, m.play()
			}

		case "enter", "r":
			return m, m.play()

		case "s":
			m.stop()
			return m, control(m.speaker.Stop, "stop")

		case "+", "=":
			m.opts.Speed = speech.NextSpeed(m.opts.Speed)
			return m, m.showStatusMessage("Speed " + speech.FormatSpeed(m.opts.Speed))

		case "-", "_":
			m.opts.Speed = speech.PrevSpeed(m.opts.Speed)
			return m, m.showStatusMessage("Speed " + speech.FormatSpeed(m.opts.Speed))

		case "y":
			if err := clipboard.WriteAll(m.text); err != nil {
				log.Error("error copying text", "error", err)
				return m, m.showStatusMessage("Unable to copy text")
			}
			return m, m.showStatusMessage("Copied text")

		case "g", "home":
			m.viewport.GotoTop()
			return m, nil

		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil

		case "?":
			m.toggleHelp()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.setSize(msg.Width, msg.Height)
		m.relayout()

	case playMsg:
		return m, m.play()

	case speakMsg:
		if m.state != stateWaiting {
			// Stopped while synthesizing.
			if msg.utterance != nil {
				return m, control(m.speaker.Stop, "stop")
			}
			return m, nil
		}
		if msg.err != nil {
			log.Error("unable to speak", "error", msg.err)
			m.state = stateFailed
			m.err = msg.err
			return m, nil
		}
		u := msg.utterance
		m.utterance = u
		m.session = u.NewSession()
		m.highlight = m.session.Highlight()
		m.text = u.Text
		m.state = statePlaying
		m.scroller.Reset()
		m.viewport.GotoTop()
		m.relayout()
		return m, waitForEvent(u)

	case progressMsg:
		if m.utterance == nil || msg.event.UtteranceID() != m.utterance.ID {
			return m, nil
		}
		if m.session.Apply(msg.event) {
			m.highlight = m.session.Highlight()
			m.refresh()
		}
		return m, waitForEvent(m.utterance)

	case doneMsg:
		if m.utterance == nil || msg.id != m.utterance.ID {
			return m, nil
		}
		if msg.err != nil && !errors.Is(msg.err, speech.ErrStopped) {
			log.Error("utterance failed", "error", msg.err)
			m.session.Stop()
			m.state = stateFailed
			m.err = msg.err
		} else {
			m.session.Finish()
			m.state = stateFinished
		}
		m.highlight = m.session.Highlight()
		m.utterance = nil
		m.refresh()
		return m, nil

	case controlMsg:
		if msg.err != nil && !errors.Is(msg.err, speech.ErrNoUtterance) {
			log.Error("playback control failed", "action", msg.action, "error", msg.err)
			return m, m.showStatusMessage("Unable to " + msg.action)
		}
		return m, nil

	case reloadMsg:
		src, err := m.src.Reload()
		if err != nil {
			log.Error("unable to reload", "error", err)
			return m, tea.Batch(
				m.showStatusMessage("Unable to reload"),
				watchFile(m.watcher, m.src.Location),
			)
		}
		if m.utterance != nil {
			m.stop()
			cmds = append(cmds, control(m.speaker.Stop, "stop"))
		}
		m.src = src
		m.text = src.Text
		m.highlight = karaoke.Highlight{Span: karaoke.Span{Text: src.Text}}
		m.state = stateIdle
		m.relayout()
		cmds = append(cmds,
			m.showStatusMessage("Reloaded"),
			watchFile(m.watcher, m.src.Location),
		)
		return m, tea.Batch(cmds...)

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		return m, nil

	case spinner.TickMsg:
		if m.state != stateWaiting {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return ""
	}
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")

	// Footer
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

// play starts speaking the current text from the beginning.
func (m *model) play() tea.Cmd {
	m.stop()
	m.state = stateWaiting
	m.err = nil
	return tea.Batch(
		m.spinner.Tick,
		speak(m.ctx, m.speaker, m.src.Text, m.opts),
	)
}

// stop deactivates the current session. The caller stops the speaker.
func (m *model) stop() {
	if m.session != nil {
		m.session.Stop()
		m.highlight = m.session.Highlight()
	}
	m.utterance = nil
	m.state = stateIdle
	m.refresh()
}

func (m *model) shutdown() {
	if err := m.speaker.Stop(); err != nil {
		log.Debug("error stopping speaker", "error", err)
	}
	if m.session != nil {
		m.session.Stop()
	}
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			log.Debug("error closing fsnotify watcher", "error", err)
		}
	}
}

func (m *model) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = max(0, h-statusBarHeight)

	if m.showHelp {
		m.viewport.Height = max(0, m.viewport.Height-strings.Count(m.helpView(), "\n")-statusBarHeight)
	}
}

func (m *model) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.width, m.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

// relayout wraps the text to the viewport and redraws it.
func (m *model) relayout() {
	m.layout = newLayout(m.text, m.viewport.Width)
	m.scroller.Reset()
	m.refresh()
}

// refresh redraws the highlight and scrolls it into view.
func (m *model) refresh() {
	if m.layout.text != m.text {
		m.layout = newLayout(m.text, m.viewport.Width)
	}
	m.viewport.SetContent(m.layout.render(m.highlight, m.style))

	if !m.highlight.Active || m.viewport.Height <= 0 {
		return
	}
	mark := m.layout.mark(m.highlight.Span)
	view := karaoke.Viewport{
		ScrollTop:    float64(m.viewport.YOffset),
		ClientHeight: float64(m.viewport.Height),
	}
	if top, ok := m.scroller.Update(mark, view); ok {
		m.viewport.SetYOffset(int(top))
	}
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusMessage = msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)

	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m *model) initWatcher() {
	var err error
	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
		m.watcher = nil
	}
}

// COMMANDS

func speak(ctx context.Context, s Speaker, text string, opts speech.Options) tea.Cmd {
	return func() tea.Msg {
		u, err := s.Speak(ctx, text, opts)
		return speakMsg{utterance: u, err: err}
	}
}

// waitForEvent delivers the next event of u, or doneMsg once u has ended.
func waitForEvent(u *speech.Utterance) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-u.Events()
		if !ok {
			<-u.Done()
			return doneMsg{id: u.ID, err: u.Err()}
		}
		return progressMsg{event: ev}
	}
}

func control(fn func() error, action string) tea.Cmd {
	return func() tea.Msg {
		return controlMsg{action: action, err: fn()}
	}
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

func watchFile(w *fsnotify.Watcher, path string) tea.Cmd {
	if w == nil || path == "" {
		return nil
	}
	return func() tea.Msg {
		dir := filepath.Dir(path)
		if err := w.Add(dir); err != nil {
			log.Error("error adding dir to fsnotify watcher", "error", err)
			return nil
		}

		log.Info("fsnotify watching dir", "dir", dir)

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return nil
				}
				if event.Name != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				return reloadMsg{}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				log.Debug("fsnotify error", "dir", dir, "error", err)
			}
		}
	}
}

// ETC

// shortPath replaces the home directory prefix with "~".
func shortPath(path, home string) string {
	if home == "" || !strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return path
	}
	return "~" + strings.TrimPrefix(path, home)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
