package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openfroyo/configtpl/pkg/bridge"
	"github.com/openfroyo/configtpl/pkg/config"
	"github.com/openfroyo/configtpl/pkg/marshal"
	"github.com/openfroyo/configtpl/pkg/registry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// watchDebounce collapses bursts of file events into one render.
const watchDebounce = 100 * time.Millisecond

func newRenderCommand() *cobra.Command {
	var (
		flags  buildFlags
		format string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "render [paths...]",
		Short: "Build configuration from sources and print it",
		Long: `Build configuration from the given sources, in order, and print the
resolved result.

Directories and .cue files are evaluated with CUE, .star files are run as
Starlark, and anything else is rendered as a Go template and parsed as YAML.`,
		Example: `  # Render two layers
  configtpl render base.yaml prod.yaml

  # Inject APP__* environment variables and override a value
  configtpl render --env-prefix APP --set server.port=8080 base.yaml

  # Print JSON and re-render whenever a source changes
  configtpl render --format json --watch config/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "json" {
				return fmt.Errorf("invalid format %q (must be yaml or json)", format)
			}

			b, h, buildArgs, err := prepareBuild(cmd.Context(), &flags, args)
			if err != nil {
				return err
			}

			renderOnce := func(ctx context.Context) error {
				return renderTo(ctx, cmd.OutOrStdout(), b, h, buildArgs, format)
			}

			if !watch {
				return renderOnce(cmd.Context())
			}
			return watchAndRender(cmd.Context(), args, cmd.ErrOrStderr(), renderOnce)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml, json); json rejects NaN and infinite floats")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-render when a source changes")

	return cmd
}

// prepareBuild creates a bridge with one builder configured from flags.
func prepareBuild(ctx context.Context, flags *buildFlags, paths []string) (*bridge.Bridge, registry.Handle, config.BuildArgs, error) {
	opts, err := flags.options()
	if err != nil {
		return nil, 0, config.BuildArgs{}, err
	}
	buildArgs, err := flags.buildArgs(paths)
	if err != nil {
		return nil, 0, config.BuildArgs{}, err
	}

	b := bridge.New(bridge.WithTelemetry(tel))
	h, err := b.Create(ctx, opts...)
	if err != nil {
		return nil, 0, config.BuildArgs{}, err
	}
	return b, h, buildArgs, nil
}

// renderTo builds and writes the result to w in format.
func renderTo(ctx context.Context, w io.Writer, b *bridge.Bridge, h registry.Handle, args config.BuildArgs, format string) error {
	if format == "json" {
		out, err := bridge.RenderArgs[any](ctx, b, marshal.JSONFactory{}, h, args)
		if errors.Is(err, marshal.ErrNonFinite) {
			return fmt.Errorf("%w (use --format yaml)", err)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	node, err := bridge.RenderArgs[*yaml.Node](ctx, b, marshal.YAMLFactory{}, h, args)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return err
	}
	return enc.Close()
}

// watchAndRender renders once, then again after every change to a source,
// until ctx is done. Render errors are reported and watching continues.
func watchAndRender(ctx context.Context, paths []string, errOut io.Writer, render func(context.Context) error) error {
	logger := tel.Logger.NewComponentLogger("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range watchDirs(paths) {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		logger.WithField("dir", dir).Debug("watching")
	}

	report := func() {
		if err := render(ctx); err != nil {
			fmt.Fprintf(errOut, "render failed: %v\n", err)
		}
	}
	report()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			logger.WithField("event", event.String()).Debug("source changed")
			pending = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("watch error")
		case <-pending:
			pending = nil
			report()
		}
	}
}

// watchDirs returns the directories to watch for paths: each directory
// source itself and the parent of each file source, without duplicates.
func watchDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		dir := filepath.Dir(abs)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			dir = abs
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
