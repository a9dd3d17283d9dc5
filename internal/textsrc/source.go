// Package textsrc resolves the text to speak from a command-line argument:
// literal text, stdin, an http(s) URL or a file.
package textsrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// MaxSize caps how much text is read from any source.
const MaxSize = 1 << 20

var (
	// ErrEmpty is returned when the source holds no text.
	ErrEmpty = errors.New("no text to speak")

	// ErrTooLarge is returned when the source exceeds MaxSize.
	ErrTooLarge = fmt.Errorf("text exceeds %d bytes", MaxSize)
)

// Kind tells where a source came from.
type Kind int

const (
	KindLiteral Kind = iota
	KindStdin
	KindURL
	KindFile
)

// Source is resolved text with its origin.
type Source struct {
	Kind Kind

	// Location is the absolute file path or the URL; empty otherwise.
	Location string

	// Markdown is set when the text was reduced from markdown.
	Markdown bool

	Text string
}

// IsFile reports whether the source can be watched for changes.
func (s *Source) IsFile() bool {
	return s.Kind == KindFile
}

// Options controls how sources are read.
type Options struct {
	// Markdown forces markdown stripping; files ending in a markdown
	// extension are always stripped.
	Markdown bool

	// Stdin is read for the "-" argument.
	Stdin io.Reader

	// HTTPClient fetches URLs, defaulting to a client with a 30s timeout.
	HTTPClient *http.Client
}

// Resolve turns arg into text. "-" reads stdin, an http(s) URL is fetched,
// an existing path (with ~ expansion) is read, and anything else is the
// text itself.
func Resolve(ctx context.Context, arg string, opts Options) (*Source, error) {
	if arg == "-" {
		if opts.Stdin == nil {
			opts.Stdin = os.Stdin
		}
		b, err := readLimited(opts.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read stdin: %w", err)
		}
		return finish(&Source{Kind: KindStdin}, string(b), opts.Markdown)
	}

	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
		}
		b, err := fetch(ctx, opts.HTTPClient, u.String())
		if err != nil {
			return nil, err
		}
		return finish(&Source{Kind: KindURL, Location: u.String()}, string(b),
			opts.Markdown || IsMarkdownFile(u.Path))
	}

	if path, err := homedir.Expand(arg); err == nil {
		if st, err := os.Stat(path); err == nil {
			if st.IsDir() {
				return nil, fmt.Errorf("%s is a directory", arg)
			}
			return ReadFile(path, opts.Markdown)
		}
	}

	return finish(&Source{Kind: KindLiteral}, arg, opts.Markdown)
}

// ReadFile reads the file at path, stripping markdown when forced or when
// the extension says so.
func ReadFile(path string, markdown bool) (*Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	b, err := readLimited(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return finish(&Source{Kind: KindFile, Location: abs}, string(b), markdown || IsMarkdownFile(abs))
}

// Reload reads a file source again.
func (s *Source) Reload() (*Source, error) {
	if !s.IsFile() {
		return s, nil
	}
	return ReadFile(s.Location, s.Markdown)
}

// IsMarkdownFile reports whether the path has a markdown extension.
func IsMarkdownFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".mdown", ".mkdn", ".mkd", ".markdown":
		return true
	default:
		return false
	}
}

func finish(src *Source, text string, markdown bool) (*Source, error) {
	if markdown {
		text = StripMarkdown(text)
		src.Markdown = true
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmpty
	}
	src.Text = text
	return src, nil
}

func fetch(ctx context.Context, client *http.Client, u string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	b, err := readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", u, err)
	}
	return b, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxSize {
		return nil, ErrTooLarge
	}
	return b, nil
}
