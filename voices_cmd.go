package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/karaoke/internal/speech/engines"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices of the hosted engines",
	Long: paragraph(fmt.Sprintf("\n%s the ElevenLabs voices of your account and the Bark speaker presets for --lang.",
		keyword("List"))),
	Example: paragraph("karaoke voices\nkaraoke voices --lang en-US"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()

		fmt.Fprintln(w, keyword("ElevenLabs"))
		if run.Secrets.ElevenLabsKey == "" {
			fmt.Fprintln(w, faint("  Set ELEVENLABS_API_KEY to list your voices."))
		} else {
			el := engines.NewElevenLabs(engines.ElevenLabsConfig{APIKey: run.Secrets.ElevenLabsKey})
			voices, err := el.Voices(cmd.Context())
			if err != nil {
				return err
			}
			printElevenLabsVoices(w, voices)
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, keyword("Bark"))
		printBarkVoices(w, engines.BarkVoicesFor(run.Options.BaseLanguage()))
		return nil
	},
}

func printElevenLabsVoices(w io.Writer, voices []engines.Voice) {
	if len(voices) == 0 {
		fmt.Fprintln(w, faint("  No voices."))
		return
	}
	sort.Slice(voices, func(i, j int) bool {
		return strings.ToLower(voices[i].Name) < strings.ToLower(voices[j].Name)
	})
	for _, v := range voices {
		fmt.Fprintf(w, "  %-24s %-12s %s\n", v.Name, v.Category, faint(v.ID))
	}
}

func printBarkVoices(w io.Writer, voices []engines.BarkVoice) {
	if len(voices) == 0 {
		fmt.Fprintln(w, faint("  No presets for this language."))
		return
	}
	for _, v := range voices {
		fmt.Fprintf(w, "  %-24s %s\n", v.Name, faint(v.ID))
	}
}
