package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yousuf/tracemap/internal/deobfuscator"
	"github.com/yousuf/tracemap/internal/loader"
	"github.com/yousuf/tracemap/internal/logging"
	"github.com/yousuf/tracemap/internal/sourcemap"
)

var (
	resolveMaps    []string
	resolveInline  []string
	resolveDebug   bool
	resolveColor   string
	resolveVerbose bool
)

func init() {
	resolveCmd.Flags().StringArrayVar(&resolveMaps, "map", nil, "external map as generated.js=path/to/map (repeatable); the generated name defaults to the map's file field")
	resolveCmd.Flags().StringArrayVar(&resolveInline, "inline", nil, "generated file carrying an inline source map (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveDebug, "debug", false, "mark every frame as mapped or unmapped")
	resolveCmd.Flags().StringVar(&resolveColor, "color", "auto", "colorize debug markers (auto|on|off)")
	resolveCmd.Flags().BoolVarP(&resolveVerbose, "verbose", "v", false, "log map loading")
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [stack-file]",
	Short: "Deobfuscate a stack trace read from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		sources, err := resolveSources(cmd)
		if err != nil {
			return err
		}

		level := "error"
		if resolveVerbose {
			level = "debug"
		}
		logger := logging.New(cmd.ErrOrStderr(), level, "text")

		deob := deobfuscator.New(deobfuscator.WithLogger(logger))
		defer deob.Close()

		if _, err := deob.Loader().LoadAll(ctx, sources); err != nil {
			logger.Error("some source maps failed to load", "error", err)
		}

		stack, err := readStack(cmd, args)
		if err != nil {
			return err
		}

		frames := deob.Resolve(stack)

		out := cmd.OutOrStdout()
		if resolveDebug {
			mark, err := statusMarker(out, resolveColor)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, sourcemap.FormatWithMetadata(frames, mark))
		} else {
			fmt.Fprintln(out, sourcemap.FormatStackTrace(frames))
		}
		return nil
	},
}

// resolveSources collects sources from --map and --inline, or from the
// config file when neither is given.
func resolveSources(cmd *cobra.Command) ([]loader.Source, error) {
	if len(resolveMaps) == 0 && len(resolveInline) == 0 {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return deobfuscator.BuildSources(cfg.Src, cfg.SrcURL, cfg.MapRoot())
	}

	sources := make([]loader.Source, 0, len(resolveMaps)+len(resolveInline))
	for _, arg := range resolveMaps {
		src, err := parseMapFlag(arg)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	for _, file := range resolveInline {
		sources = append(sources, loader.Source{Key: sourcemap.Key(file), Path: file, Inline: true})
	}
	return sources, nil
}

// parseMapFlag parses "generated.js=path.map" or a bare "path.map". A bare
// map is keyed by its "file" field, or by its own name without ".map" when
// it cannot be read or records no file.
func parseMapFlag(arg string) (loader.Source, error) {
	generated, mapPath, found := strings.Cut(arg, "=")
	if !found {
		mapPath = arg
		generated = generatedName(mapPath)
	}
	if generated == "" || mapPath == "" {
		return loader.Source{}, fmt.Errorf("invalid --map %q (want generated.js=path/to/map)", arg)
	}
	return loader.Source{Key: sourcemap.Key(generated), Path: generated, MapPath: mapPath}, nil
}

func generatedName(mapPath string) string {
	if data, err := os.ReadFile(mapPath); err == nil {
		if m, err := sourcemap.ParseMap(data); err == nil && m.File() != "" {
			return m.File()
		}
	}
	return strings.TrimSuffix(sourcemap.Key(mapPath), ".map")
}

func readStack(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read stack file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stack from stdin: %w", err)
	}
	return string(data), nil
}

// statusMarker returns a decorator painting mapped markers green and
// unmapped ones red.
func statusMarker(out io.Writer, mode string) (func(mapped bool, status string) string, error) {
	enabled, err := colorEnabled(out, mode)
	if err != nil {
		return nil, err
	}

	mappedColor := color.New(color.FgGreen)
	unmappedColor := color.New(color.FgRed, color.Faint)
	for _, c := range []*color.Color{mappedColor, unmappedColor} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return func(mapped bool, status string) string {
		if mapped {
			return mappedColor.Sprint(status)
		}
		return unmappedColor.Sprint(status)
	}, nil
}

func colorEnabled(out io.Writer, mode string) (bool, error) {
	switch strings.ToLower(mode) {
	case "on", "always":
		return true, nil
	case "off", "never":
		return false, nil
	case "auto", "":
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("invalid --color %q (must be auto, on or off)", mode)
	}
}
