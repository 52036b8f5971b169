package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/lifecycle"
	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
	"github.com/socialgravity/socialgravity/internal/trial"
)

var (
	simAudience string
	simVideo    string
	simDuration float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulation for a video and audience",
	Long: `Upload a short video, convert it, and simulate how personas drawn from
the audience description react to it.

Progress is recorded locally, so 'sg list' and 'sg status' work even if
the run is interrupted.

Example:
  sg simulate --audience "first-time founders on TikTok" --video pitch.mov --duration 42`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simAudience, "audience", "a", "", "who the video is for (required)")
	simulateCmd.Flags().StringVarP(&simVideo, "video", "v", "", "path to the video file (required)")
	simulateCmd.Flags().Float64VarP(&simDuration, "duration", "d", 0, "video length in seconds, 0 if unknown")
	simulateCmd.MarkFlagRequired("audience")
	simulateCmd.MarkFlagRequired("video")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	in := lifecycle.Input{
		AudiencePrompt:  simAudience,
		VideoPath:       simVideo,
		DurationSeconds: simDuration,
	}
	return simulateWithConfig(cmd, in)
}

// simulateWithConfig wires the configured backend and local store into a run.
func simulateWithConfig(cmd *cobra.Command, in lifecycle.Input) error {
	b, err := newBackend()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return withStore(func(s *store.SQLiteStore) error {
		view, err := runSimulation(ctx, cmd.OutOrStdout(), s, newController(b), b, in, cfg.UserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		printView(cmd.OutOrStdout(), view)
		return nil
	})
}

// runSimulation checks the free-trial gate, drives the lifecycle while
// recording each transition, then fetches, caches and maps the results.
func runSimulation(ctx context.Context, out io.Writer, s store.Store, c *lifecycle.Controller, f fetcher, in lifecycle.Input, userID string) (*simulation.View, error) {
	gate := trial.New(s)
	if err := gate.Check(ctx, userID); err != nil {
		return nil, err
	}
	// Catch bad input before the trial is spent.
	if err := c.Validate(in); err != nil {
		return nil, errors.New(lifecycle.Describe(err))
	}

	rec := newRecorder(ctx, s, out, in)
	if userID == "" {
		rec.onCreated = func(string) {
			if err := gate.MarkUsed(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to mark free simulation as used", "error", err)
			}
		}
	}

	res, err := c.Run(ctx, in, rec.observe)
	if err != nil {
		return nil, errors.New(lifecycle.Describe(err))
	}

	payload, err := fetchAndCache(ctx, f, s, res.SimulationID)
	if err != nil {
		return nil, fmt.Errorf("simulation %s finished but results could not be loaded: %s", res.SimulationID, lifecycle.Describe(err))
	}
	return simulation.NewMapper(logger).MapJSON(payload)
}
