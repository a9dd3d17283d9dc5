package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manPage, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err
		}

		manPage = manPage.WithSection("Environment", "ELEVENLABS_API_KEY enables the neural engine.\n"+
			"HUGGINGFACE_API_KEY and LOCAL_BARK_URL configure the fallback engine.\n"+
			"KARAOKE_CONFIG_HOME overrides where karaoke.yml is looked up.")
		fmt.Println(manPage.Build(roff.NewDocument()))
		return nil
	},
}
