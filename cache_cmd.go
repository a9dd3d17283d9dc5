package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/karaoke/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the synthesized audio cache",
		Args:  cobra.NoArgs,
		RunE:  cacheStatsCmd.RunE,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show how much audio is cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := cache.NewManager(run.Cache, log.Default())
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			printCacheStats(cmd.OutOrStdout(), run.Cache.Dir, m.Stats())
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := cache.NewManager(run.Cache, log.Default())
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			freed := m.Stats().Disk.Size
			if err := m.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Freed %s.\n", byteSize(freed))
			return nil
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

func printCacheStats(w io.Writer, dir string, s cache.ManagerStats) {
	if dir != "" {
		fmt.Fprintf(w, "%s %s\n", keyword("Directory:"), dir)
	}
	fmt.Fprintf(w, "%s %s in %s of %s\n", keyword("Disk:"),
		plural(int(s.Disk.Items), "clip", "clips"), byteSize(s.Disk.Size), byteSize(s.Disk.Capacity))
	fmt.Fprintf(w, "%s %s\n", keyword("Memory:"), byteSize(s.Memory.Capacity))
}

func byteSize(n int64) string {
	return humanize.IBytes(uint64(max(n, 0))) //nolint:gosec
}
