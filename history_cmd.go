package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/karaoke/internal/history"
	"github.com/dgnsrekt/karaoke/internal/speech"
	"github.com/dgnsrekt/karaoke/internal/textsrc"
)

const historyTextWidth = 50

var (
	historyFilter struct {
		search string
		since  time.Duration
	}
	historyExportFile string
	historyPlayPlain  bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List and manage what you have spoken",
		Long:  paragraph(fmt.Sprintf("\n%s the phrases you have spoken, newest first.", keyword("Browse"))),
		Args:  cobra.NoArgs,
		RunE:  historyListCmd.RunE,
	}

	historyListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List spoken phrases",
		Example: paragraph("karaoke history list --since 24h\nkaraoke history list --engine neural --search привет"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHistory()
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), h.List(historyFilterFromFlags(cmd)), time.Now())
			return nil
		},
	}

	historySearchCmd = &cobra.Command{
		Use:   "search QUERY",
		Short: "Fuzzy-search spoken phrases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory()
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), h.Search(strings.Join(args, " ")), time.Now())
			return nil
		},
	}

	historyShowCmd = &cobra.Command{
		Use:   "show ID",
		Short: "Show a spoken phrase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory()
			if err != nil {
				return err
			}
			item, err := h.Get(args[0])
			if err != nil {
				return err
			}
			printHistoryItem(cmd.OutOrStdout(), item)
			return nil
		},
	}

	historyPlayCmd = &cobra.Command{
		Use:     "play ID",
		Aliases: []string{"replay"},
		Short:   "Speak a phrase again",
		Long:    paragraph(fmt.Sprintf("\n%s a phrase with the engine, language and voice it was first spoken with.", keyword("Replay"))),
		Example: paragraph("karaoke history play 0123abcd\nkaraoke history play 0123abcd --plain"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory()
			if err != nil {
				return err
			}
			item, err := h.Get(args[0])
			if err != nil {
				return err
			}

			s := run
			s.Options = replayOptions(run.Options, item)
			s.Plain = s.Plain || historyPlayPlain
			if item.CacheKey != "" && speech.CacheKey(item.Text, s.Options) == item.CacheKey {
				log.Debug("Replaying cached audio", "id", item.ID, "key", item.CacheKey)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return speakSource(ctx, s, &textsrc.Source{Kind: textsrc.KindLiteral, Text: item.Text})
		},
	}

	historyRemoveCmd = &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Remove a spoken phrase",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory()
			if err != nil {
				return err
			}
			if err := h.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed", args[0])
			return nil
		},
	}

	historyClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Forget everything you have spoken",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHistory()
			if err != nil {
				return err
			}
			n := h.Len()
			if err := h.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", plural(n, "entry", "entries"))
			return nil
		},
	}

	historyExportCmd = &cobra.Command{
		Use:     "export",
		Short:   "Export spoken phrases as JSON",
		Example: paragraph("karaoke history export > history.json\nkaraoke history export --engine native -f native.json"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHistory()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if historyExportFile != "" {
				out, err := os.Create(historyExportFile)
				if err != nil {
					return fmt.Errorf("unable to create export file: %w", err)
				}
				defer func() { _ = out.Close() }()
				w = out
			}
			return h.Export(w, historyFilterFromFlags(cmd))
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{historyCmd, historyListCmd, historyExportCmd} {
		c.Flags().StringVar(&historyFilter.search, "search", "", "only phrases containing this text")
		c.Flags().DurationVar(&historyFilter.since, "since", 0, "only phrases spoken within this long")
	}
	historyExportCmd.Flags().StringVarP(&historyExportFile, "file", "f", "", "write to a file instead of stdout")

	historyPlayCmd.Flags().BoolVarP(&historyPlayPlain, "plain", "p", false, "print words as they are spoken instead of starting the pager")

	historyCmd.AddCommand(historyListCmd, historySearchCmd, historyShowCmd, historyPlayCmd, historyRemoveCmd, historyClearCmd, historyExportCmd)
}

func openHistory() (*history.Store, error) {
	if !run.HistoryEnabled {
		return nil, fmt.Errorf("history is disabled: set history.enabled in %s", configFile)
	}
	return history.Open(run.HistoryFile)
}

// replayOptions returns base with the engine, language and voice an item
// was spoken with, so hosted audio is found in the cache again.
func replayOptions(base speech.Options, item history.Item) speech.Options {
	opts := base
	opts.Engine = item.Engine
	opts.Language = item.Language
	opts.Voice = item.VoiceID
	return opts
}

// historyFilterFromFlags builds a filter from the list flags. The global
// --engine and --lang flags only filter when given explicitly, since they
// always have a value.
func historyFilterFromFlags(cmd *cobra.Command) history.Filter {
	var f history.Filter
	if cmd.Flags().Changed("engine") {
		f.Engine = run.Options.Engine
	}
	if cmd.Flags().Changed("lang") {
		f.Language = run.Options.Language
	}
	f.Search = historyFilter.search
	if historyFilter.since > 0 {
		f.From = time.Now().Add(-historyFilter.since)
	}
	return f
}

func printHistory(w io.Writer, items []history.Item, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, faint("Nothing spoken yet."))
		return
	}
	for _, item := range items {
		text := strings.Join(strings.Fields(item.Text), " ")
		fmt.Fprintf(w, "%s  %s  %-8s %-6s %s\n",
			keyword(shortID(item.ID)),
			runewidth.FillRight(runewidth.Truncate(text, historyTextWidth, "…"), historyTextWidth),
			item.Engine,
			item.Language,
			faint(humanize.RelTime(item.Timestamp, now, "ago", "from now")),
		)
	}
}

func printHistoryItem(w io.Writer, item history.Item) {
	fmt.Fprintf(w, "%s %s\n", keyword("ID:"), item.ID)
	fmt.Fprintf(w, "%s %s\n", keyword("Engine:"), item.Engine)
	fmt.Fprintf(w, "%s %s\n", keyword("Language:"), item.Language)
	if item.VoiceID != "" {
		voice := item.VoiceID
		if item.VoiceName != "" {
			voice = item.VoiceName + " (" + item.VoiceID + ")"
		}
		fmt.Fprintf(w, "%s %s\n", keyword("Voice:"), voice)
	}
	fmt.Fprintf(w, "%s %s (%s)\n", keyword("Spoken:"),
		item.Timestamp.Local().Format(time.DateTime), humanize.Time(item.Timestamp))
	fmt.Fprintf(w, "\n%s\n", item.Text)
}

func shortID(id string) string {
	const n = 8
	if len(id) > n {
		return id[:n]
	}
	return id
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}
