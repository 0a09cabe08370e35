package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yousuf/tracemap/internal/deobfuscator"
	"github.com/yousuf/tracemap/internal/loader"
	"github.com/yousuf/tracemap/internal/logging"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every configured source map once and report failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sources, err := deobfuscator.BuildSources(cfg.Src, cfg.SrcURL, cfg.MapRoot())
		if err != nil {
			return err
		}

		logger := logging.New(cmd.ErrOrStderr(), "error", "text")
		deob := deobfuscator.New(deobfuscator.WithLogger(logger))
		defer deob.Close()

		results, loadErr := deob.Loader().LoadAll(ctx, sources)
		printResults(cmd.OutOrStdout(), results)

		if loadErr != nil {
			return errors.New("source map check failed")
		}
		return nil
	},
}

// printResults writes one status line per source and a loaded count.
// Sources sharing a key each count, even though only one map survives.
func printResults(out io.Writer, results []loader.Result) {
	ok := color.New(color.FgGreen, color.Bold)
	failed := color.New(color.FgRed, color.Bold)

	loaded := 0
	for _, r := range results {
		origin := r.Source.MapPath
		if r.Source.Inline {
			origin = r.Source.Path + " (inline)"
		}
		if r.Err != nil {
			fmt.Fprintf(out, "%s %s: %s\n  %v\n", failed.Sprint("✗"), r.Source.Key, origin, r.Err)
			continue
		}
		loaded++
		fmt.Fprintf(out, "%s %s: %s\n", ok.Sprint("✓"), r.Source.Key, origin)
	}

	fmt.Fprintf(out, "\n%d of %d source maps loaded\n", loaded, len(results))
}
