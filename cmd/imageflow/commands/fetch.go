package commands

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pellucid/imageflow/internal/logger"
	"github.com/pellucid/imageflow/pkg/load"
	"github.com/pellucid/imageflow/pkg/loader"
	"github.com/pellucid/imageflow/pkg/transform"
)

var (
	fetchOutput    string
	fetchProgress  bool
	fetchNoCache   bool
	fetchCacheOnly bool
	fetchNoStore   bool
	fetchRetry     bool
	fetchResize    string
	fetchGrayscale bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch an image through the cache tiers",
	Long: `Fetch an image, walking memory -> disk -> network, and report where
it was served from. With --output the decoded image is re-encoded as PNG and
written to the given path.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "write the decoded image (PNG) to this path")
	fetchCmd.Flags().BoolVar(&fetchProgress, "progress", false, "print download progress")
	fetchCmd.Flags().BoolVar(&fetchNoCache, "no-cache", false, "skip cache lookup and fetch from the network")
	fetchCmd.Flags().BoolVar(&fetchCacheOnly, "cache-only", false, "fail instead of touching the network")
	fetchCmd.Flags().BoolVar(&fetchNoStore, "no-store", false, "do not write the result back to the cache")
	fetchCmd.Flags().BoolVar(&fetchRetry, "retry-failed", false, "retry a URL that previously failed")
	fetchCmd.Flags().StringVar(&fetchResize, "resize", "", "resize to WxH before caching, e.g. 256x256")
	fetchCmd.Flags().BoolVar(&fetchGrayscale, "grayscale", false, "convert to grayscale before caching")
}

func runFetch(cmd *cobra.Command, args []string) error {
	url := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, mgr, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer func() {
		mgr.Close()
		if store != nil {
			if cerr := store.Close(); cerr != nil {
				logger.Warn("failed to close cache", "error", cerr)
			}
		}
	}()

	opts := fetchOptions()
	lctx := loader.Context{}
	if t, err := fetchTransformer(); err != nil {
		return err
	} else if t != nil {
		lctx[loader.CtxTransformer] = t
	}

	queue := load.NewSerialQueue()
	defer queue.Close()

	state := load.NewState(queue)
	callbacks := load.NewCallbacks()
	coord := load.NewCoordinator(load.Config{
		Manager: mgr,
		Cache:   store,
		URL:     url,
		Options: opts,
		Context: lctx,
	}, state, callbacks)
	defer coord.Close()

	done := make(chan error, 1)
	var served loader.CacheSource
	callbacks.OnSuccess(func(_ image.Image, source loader.CacheSource) {
		served = source
		done <- nil
	})
	callbacks.OnFailure(func(err error) {
		done <- err
	})

	if fetchProgress {
		callbacks.OnProgress(func(received, expected int64) {
			if expected > 0 {
				fmt.Fprintf(os.Stderr, "\r%d / %d bytes", received, expected)
			} else {
				fmt.Fprintf(os.Stderr, "\r%d bytes", received)
			}
		})
	}

	coord.Load()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-done:
		if fetchProgress {
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return err
		}
	case <-sigCh:
		coord.Cancel()
		return fmt.Errorf("fetch cancelled")
	}

	queue.Sync()
	snap := state.Snapshot()
	if snap.Image == nil {
		return loader.ErrNoImage
	}

	bounds := snap.Image.Bounds()
	fmt.Printf("Fetched %s (%dx%d, served from %s)\n", url, bounds.Dx(), bounds.Dy(), served)

	if fetchOutput != "" {
		f, err := os.Create(fetchOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		if err := png.Encode(f, snap.Image); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		fmt.Printf("Wrote %s\n", fetchOutput)
	}
	return nil
}

func fetchOptions() loader.Options {
	var opts loader.Options
	if fetchNoCache {
		opts |= loader.OptFromLoaderOnly
	}
	if fetchCacheOnly {
		opts |= loader.OptFromCacheOnly
	}
	if fetchNoStore {
		opts |= loader.OptAvoidCacheWrite
	}
	if fetchRetry {
		opts |= loader.OptRetryFailed
	}
	return opts
}

// fetchTransformer builds the transformer pipeline from the flags, or nil
// when no transformation was requested.
func fetchTransformer() (transform.Transformer, error) {
	var pipeline transform.Pipeline
	if fetchResize != "" {
		var w, h int
		if _, err := fmt.Sscanf(strings.ToLower(fetchResize), "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			return nil, fmt.Errorf("invalid --resize value %q, expected WxH", fetchResize)
		}
		pipeline = append(pipeline, transform.Resize{Width: w, Height: h})
	}
	if fetchGrayscale {
		pipeline = append(pipeline, transform.Grayscale{})
	}

	switch len(pipeline) {
	case 0:
		return nil, nil
	case 1:
		return pipeline[0], nil
	default:
		return pipeline, nil
	}
}
