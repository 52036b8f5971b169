package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/socialgravity/socialgravity/internal/backend"
	"github.com/socialgravity/socialgravity/internal/lifecycle"
	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
	"github.com/socialgravity/socialgravity/internal/transport"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// newBackend builds the backend client from the loaded configuration.
func newBackend() (*backend.Client, error) {
	if err := cfg.RequireBackend(); err != nil {
		return nil, err
	}
	t := transport.New(cfg.ProjectURL, cfg.APIKey, cfg.HTTPTimeout())
	return backend.New(t, cfg.StorageBucket, cfg.UserID), nil
}

func newController(b lifecycle.Backend) *lifecycle.Controller {
	return lifecycle.New(b, lifecycle.OptionsFromConfig(cfg, logger))
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// getTokenFilePath returns the path to the token file, stored alongside the database.
func getTokenFilePath() string {
	return filepath.Join(filepath.Dir(cfg.DBPath), ".sg-token")
}

// recorder persists lifecycle transitions to local history and prints
// progress lines. Writes use a context that survives cancellation so an
// interrupted run is still recorded as failed.
type recorder struct {
	ctx       context.Context
	store     store.Store
	out       io.Writer
	logger    *slog.Logger
	prompt    string
	videoName string
	duration  float64
	onCreated func(id string)
}

func newRecorder(ctx context.Context, s store.Store, out io.Writer, in lifecycle.Input) *recorder {
	return &recorder{
		ctx:       context.WithoutCancel(ctx),
		store:     s,
		out:       out,
		logger:    logger,
		prompt:    in.AudiencePrompt,
		videoName: filepath.Base(in.VideoPath),
		duration:  in.DurationSeconds,
	}
}

func (r *recorder) observe(ev lifecycle.Event) {
	if ev.SimulationID == "" {
		// Creation itself failed; nothing to record.
		return
	}

	var err error
	if ev.State == lifecycle.StateCreated {
		err = r.store.SaveSimulation(r.ctx, &store.Simulation{
			ID:              ev.SimulationID,
			AudiencePrompt:  r.prompt,
			State:           string(ev.State),
			VideoName:       r.videoName,
			DurationSeconds: r.duration,
		})
		if err == nil && r.onCreated != nil {
			r.onCreated(ev.SimulationID)
		}
	} else {
		tr := store.Transition{
			State:         string(ev.State),
			BackendStatus: ev.Status,
			VideoID:       ev.VideoID,
			RawPath:       ev.RawPath,
			MP4Path:       ev.MP4Path,
			VideoURL:      ev.VideoURL,
		}
		if ev.Err != nil {
			tr.ErrorMessage = lifecycle.Describe(ev.Err)
		}
		err = r.store.RecordTransition(r.ctx, ev.SimulationID, tr)
	}
	if err != nil {
		r.logger.Warn("failed to record transition", "simulation_id", ev.SimulationID, "state", ev.State, "error", err)
	}

	if r.out != nil {
		printProgress(r.out, ev)
	}
}

func printProgress(w io.Writer, ev lifecycle.Event) {
	switch {
	case ev.State == lifecycle.StateCreated:
		fmt.Fprintf(w, "Simulation %s created\n", ev.SimulationID)
	case ev.State == lifecycle.StateUploading:
		fmt.Fprintln(w, "Uploading video...")
	case ev.State == lifecycle.StateConverting:
		fmt.Fprintln(w, "Converting video...")
	case ev.State == lifecycle.StateAnalyzing && ev.Status == "":
		fmt.Fprintln(w, "Analyzing audience reactions...")
	case ev.State == lifecycle.StateAnalyzing:
		fmt.Fprintf(w, "  status: %s\n", ev.Status)
	case ev.State == lifecycle.StateComplete:
		fmt.Fprintln(w, "Analysis complete")
	case ev.State == lifecycle.StateError:
		fmt.Fprintf(w, "Failed: %s\n", lifecycle.Describe(ev.Err))
	}
}

// fetcher reads the raw aggregate. *backend.Client implements it.
type fetcher interface {
	GetSimulation(ctx context.Context, simulationID string) ([]byte, error)
}

// fetchAndCache reads the aggregate and caches it when the simulation is
// tracked locally.
func fetchAndCache(ctx context.Context, f fetcher, s store.Store, id string) ([]byte, error) {
	payload, err := f.GetSimulation(ctx, id)
	if err != nil {
		return nil, err
	}

	_, err = s.GetSimulation(ctx, id)
	switch {
	case err == nil:
		if err := s.SaveSnapshot(ctx, id, payload); err != nil {
			logger.Warn("failed to cache results", "simulation_id", id, "error", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		logger.Warn("failed to read local history", "simulation_id", id, "error", err)
	}
	return payload, nil
}

// resolveView maps the cached aggregate, fetching it when refresh is set
// or nothing is cached. newFetcher is only called when a fetch is needed.
func resolveView(ctx context.Context, s store.Store, newFetcher func() (fetcher, error), id string, refresh bool) (*simulation.View, error) {
	if !refresh {
		snap, err := s.GetSnapshot(ctx, id)
		if err == nil {
			return simulation.NewMapper(logger).MapJSON(snap.Payload)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	f, err := newFetcher()
	if err != nil {
		return nil, err
	}
	payload, err := fetchAndCache(ctx, f, s, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch simulation %s: %s", id, lifecycle.Describe(err))
	}
	return simulation.NewMapper(logger).MapJSON(payload)
}

func backendFetcher() (fetcher, error) {
	return newBackend()
}
