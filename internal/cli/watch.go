package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/socialgravity/socialgravity/internal/lifecycle"
	"github.com/socialgravity/socialgravity/internal/store"
)

const maxConcurrentWatches = 8

var watchCmd = &cobra.Command{
	Use:   "watch <id> [id...]",
	Short: "Wait for one or more simulations to finish analysis",
	Long: `Poll the backend until each simulation completes or fails.
Completed results are fetched and cached for 'sg results'.

Example:
  sg watch 3f2c... 9ab1...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	b, err := newBackend()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return withStore(func(s *store.SQLiteStore) error {
		return watchSimulations(ctx, cmd.OutOrStdout(), s, newController(b), b, args)
	})
}

// syncWriter serializes progress lines from concurrent watches.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *syncWriter) Printf(format string, a ...any) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	fmt.Fprintf(sw.w, format, a...)
}

// watchSimulations polls every id concurrently. A failed simulation does
// not stop the others; the returned error counts the failures.
func watchSimulations(ctx context.Context, out io.Writer, s store.Store, c *lifecycle.Controller, f fetcher, ids []string) error {
	sw := &syncWriter{w: out}
	record := context.WithoutCancel(ctx)

	var (
		mu     sync.Mutex
		failed int
	)
	fail := func() {
		mu.Lock()
		failed++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWatches)

	for _, id := range ids {
		id := id // per-iteration copy; go.mod targets go 1.21 loop semantics
		g.Go(func() error {
			err := c.WatchAnalysis(gctx, id, func(status string) {
				sw.Printf("%s: %s\n", id, status)
				recordTransition(record, s, id, store.Transition{
					State:         string(lifecycle.StateAnalyzing),
					BackendStatus: status,
				})
			})
			if errors.Is(err, context.Canceled) {
				return err
			}
			if err != nil {
				fail()
				sw.Printf("%s: %s\n", id, lifecycle.Describe(err))
				recordTransition(record, s, id, store.Transition{
					State:        string(lifecycle.StateError),
					ErrorMessage: lifecycle.Describe(err),
				})
				return nil
			}

			recordTransition(record, s, id, store.Transition{State: string(lifecycle.StateComplete)})
			if _, err := fetchAndCache(gctx, f, s, id); err != nil {
				sw.Printf("%s: complete, but results could not be loaded: %s\n", id, lifecycle.Describe(err))
				return nil
			}
			sw.Printf("%s: complete (sg results %s)\n", id, id)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.New(lifecycle.Describe(err))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d simulations failed", failed, len(ids))
	}
	return nil
}

// recordTransition updates local history when the simulation is tracked here.
func recordTransition(ctx context.Context, s store.Store, id string, tr store.Transition) {
	err := s.RecordTransition(ctx, id, tr)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to record transition", "simulation_id", id, "state", tr.State, "error", err)
	}
}
