package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/socialgravity/socialgravity/internal/backend"
	"github.com/socialgravity/socialgravity/internal/config"
	"github.com/socialgravity/socialgravity/internal/transport"
)

// State is a step of the simulation lifecycle.
type State string

const (
	StateCreated    State = "created"
	StateUploading  State = "uploading"
	StateConverting State = "converting"
	StateAnalyzing  State = "analyzing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Backend is what the controller needs from the remote side.
// *backend.Client implements it.
type Backend interface {
	StartSimulation(ctx context.Context, audiencePrompt string) (string, error)
	UploadVideo(ctx context.Context, path string, r io.Reader, contentType string) error
	PublicURL(path string) string
	InsertVideoJob(ctx context.Context, job backend.VideoJob) error
	RequestVideoConversion(ctx context.Context, videoID string) (backend.ConversionAck, error)
	VideoJob(ctx context.Context, videoID string) (*backend.VideoJob, error)
	SetVideoURL(ctx context.Context, simulationID, videoURL string, durationSeconds float64) error
	TranscribeVideo(ctx context.Context, simulationID string) error
	SimulationStatus(ctx context.Context, simulationID string) (*backend.SimulationState, error)
}

var _ Backend = (*backend.Client)(nil)

type Options struct {
	ConvertInterval    time.Duration
	ConvertRetry       time.Duration
	ConvertMaxAttempts int
	AnalysisInterval   time.Duration
	MaxVideoSeconds    int
	Transcribe         bool
	Logger             *slog.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// OptionsFromConfig maps the polling and pipeline settings.
func OptionsFromConfig(cfg config.Config, logger *slog.Logger) Options {
	return Options{
		ConvertInterval:    cfg.ConvertInterval(),
		ConvertRetry:       cfg.ConvertRetry(),
		ConvertMaxAttempts: cfg.ConvertMaxAttempts,
		AnalysisInterval:   cfg.AnalysisInterval(),
		MaxVideoSeconds:    cfg.MaxVideoSeconds,
		Transcribe:         cfg.Transcribe,
		Logger:             logger,
	}
}

// Controller drives one or more simulations through the lifecycle. It
// keeps no per-simulation state, so one controller can serve concurrent runs.
type Controller struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
}

func New(b Backend, opts Options) *Controller {
	if opts.ConvertMaxAttempts <= 0 {
		opts.ConvertMaxAttempts = 60
	}
	if opts.ConvertInterval <= 0 {
		opts.ConvertInterval = 5 * time.Second
	}
	if opts.ConvertRetry <= 0 {
		opts.ConvertRetry = 2 * time.Second
	}
	if opts.AnalysisInterval <= 0 {
		opts.AnalysisInterval = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{backend: b, opts: opts, logger: opts.Logger}
}

// Input is one simulation request.
type Input struct {
	AudiencePrompt string
	VideoPath      string
	// DurationSeconds is the video length when known, 0 otherwise.
	DurationSeconds float64
}

// Event reports a state transition to an Observer.
type Event struct {
	SimulationID string
	State        State
	VideoID      string
	RawPath      string
	MP4Path      string
	VideoURL     string
	Status       string
	Err          error
}

// Observer receives transitions in order. It must not block for long.
type Observer func(Event)

// Result is what a completed run produced.
type Result struct {
	SimulationID string
	VideoID      string
	RawPath      string
	MP4Path      string
	VideoURL     string
}

// Upload is the outcome of the uploading phase.
type Upload struct {
	VideoID     string
	RawPath     string
	ContentType string
}

// Create starts a simulation and returns its id.
func (c *Controller) Create(ctx context.Context, audiencePrompt string) (string, error) {
	prompt := strings.TrimSpace(audiencePrompt)
	if prompt == "" {
		return "", &ValidationError{Field: "audience description", Reason: "is required"}
	}
	id, err := c.backend.StartSimulation(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "simulation created", "simulation_id", id)
	return id, nil
}

// Upload stores the raw video under {simID}/{unixMillis}-{name} and inserts
// its tracking record with status processing.
func (c *Controller) Upload(ctx context.Context, simulationID, videoPath string) (Upload, error) {
	contentType, err := detectVideo(videoPath)
	if err != nil {
		return Upload{}, err
	}
	f, err := os.Open(videoPath)
	if err != nil {
		return Upload{}, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	rawPath := fmt.Sprintf("%s/%d-%s", simulationID, c.opts.Now().UnixMilli(), storageName(videoPath))
	if err := c.backend.UploadVideo(ctx, rawPath, f, contentType); err != nil {
		return Upload{}, err
	}

	videoID := c.opts.NewID()
	job := backend.VideoJob{
		ID:           videoID,
		SimulationID: simulationID,
		RawPath:      rawPath,
		Status:       backend.VideoStatusProcessing,
	}
	if err := c.backend.InsertVideoJob(ctx, job); err != nil {
		return Upload{}, err
	}
	c.logger.InfoContext(ctx, "video uploaded", "simulation_id", simulationID, "video_id", videoID, "path", rawPath)
	return Upload{VideoID: videoID, RawPath: rawPath, ContentType: contentType}, nil
}

// Convert triggers conversion and waits for the tracking record to settle.
func (c *Controller) Convert(ctx context.Context, videoID string) (string, error) {
	ack, err := c.backend.RequestVideoConversion(ctx, videoID)
	if err != nil {
		return "", err
	}
	if !ack.Success || ack.Error != "" {
		reason := firstNonEmpty(ack.Error, ack.Message, "trigger did not report success")
		return "", &TriggerError{VideoID: videoID, Reason: reason}
	}
	return c.WaitForConversion(ctx, videoID)
}

// WaitForConversion reads the tracking record at most ConvertMaxAttempts
// times. An absent row waits ConvertRetry, a pending one ConvertInterval.
// It returns the output path once the record is ready.
func (c *Controller) WaitForConversion(ctx context.Context, videoID string) (string, error) {
	start := c.opts.Now()
	limit := c.opts.ConvertMaxAttempts

	for attempt := 1; attempt <= limit; attempt++ {
		job, err := c.backend.VideoJob(ctx, videoID)
		if err != nil {
			return "", err
		}

		wait := c.opts.ConvertInterval
		switch {
		case job == nil:
			// Row insert may not be visible yet.
			wait = c.opts.ConvertRetry
		case job.Status == backend.VideoStatusReady && job.MP4Path != "":
			c.logger.InfoContext(ctx, "video converted", "video_id", videoID, "attempt", attempt, "mp4_path", job.MP4Path)
			return job.MP4Path, nil
		case job.Status == backend.VideoStatusError:
			return "", &ConversionError{VideoID: videoID, Message: firstNonEmpty(job.ErrorMessage, fallbackConversionMessage)}
		default:
			c.logger.DebugContext(ctx, "video still converting", "video_id", videoID, "attempt", attempt, "status", job.Status)
		}

		if attempt == limit {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", &ConversionTimeoutError{VideoID: videoID, Attempts: limit, Elapsed: c.opts.Now().Sub(start)}
}

// Analyze registers the converted video on the simulation and triggers
// transcription. A failed transcription trigger is logged, not returned.
func (c *Controller) Analyze(ctx context.Context, simulationID, mp4Path string, durationSeconds float64) (string, error) {
	videoURL := c.backend.PublicURL(mp4Path)
	if err := c.backend.SetVideoURL(ctx, simulationID, videoURL, durationSeconds); err != nil {
		return "", err
	}
	if c.opts.Transcribe {
		if err := c.backend.TranscribeVideo(ctx, simulationID); err != nil {
			c.logger.WarnContext(ctx, "transcription trigger failed", "simulation_id", simulationID, "error", err)
		}
	}
	return videoURL, nil
}

// WatchAnalysis polls the simulation status every AnalysisInterval until it
// completes, fails or ctx is cancelled. There is no attempt ceiling.
// onStatus, when set, sees every status read.
func (c *Controller) WatchAnalysis(ctx context.Context, simulationID string, onStatus func(status string)) error {
	ticker := time.NewTicker(c.opts.AnalysisInterval)
	defer ticker.Stop()

	for {
		done, err := c.pollAnalysis(ctx, simulationID, onStatus)
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Controller) pollAnalysis(ctx context.Context, simulationID string, onStatus func(string)) (bool, error) {
	st, err := c.backend.SimulationStatus(ctx, simulationID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Late answers after cancellation are dropped.
		return true, ctxErr
	}
	if err != nil {
		if fatalStatus(err) {
			return true, err
		}
		c.logger.WarnContext(ctx, "simulation status read failed", "simulation_id", simulationID, "error", err)
		return false, nil
	}
	if st == nil {
		return false, nil
	}
	if onStatus != nil {
		onStatus(st.Status)
	}

	switch {
	case IsCompleteStatus(st.Status):
		return true, nil
	case IsErrorStatus(st.Status):
		return true, &AnalysisError{SimulationID: simulationID, Status: st.Status, Message: st.ErrorMessage}
	}
	return false, nil
}

// Run validates the input and drives every phase in order, reporting each
// transition to obs. Failures after validation come back as *PhaseError.
func (c *Controller) Run(ctx context.Context, in Input, obs Observer) (Result, error) {
	if obs == nil {
		obs = func(Event) {}
	}
	if err := c.Validate(in); err != nil {
		return Result{}, err
	}

	var res Result
	fail := func(state State, err error) (Result, error) {
		c.logger.ErrorContext(ctx, "simulation failed", "simulation_id", res.SimulationID, "state", state, "error", err)
		obs(Event{SimulationID: res.SimulationID, State: StateError, Err: err})
		return res, &PhaseError{State: state, SimulationID: res.SimulationID, Err: err}
	}

	id, err := c.Create(ctx, in.AudiencePrompt)
	if err != nil {
		return fail(StateCreated, err)
	}
	res.SimulationID = id
	obs(Event{SimulationID: id, State: StateCreated})

	obs(Event{SimulationID: id, State: StateUploading})
	up, err := c.Upload(ctx, id, in.VideoPath)
	if err != nil {
		return fail(StateUploading, err)
	}
	res.VideoID, res.RawPath = up.VideoID, up.RawPath

	obs(Event{SimulationID: id, State: StateConverting, VideoID: up.VideoID, RawPath: up.RawPath})
	mp4Path, err := c.Convert(ctx, up.VideoID)
	if err != nil {
		return fail(StateConverting, err)
	}
	res.MP4Path = mp4Path

	videoURL, err := c.Analyze(ctx, id, mp4Path, in.DurationSeconds)
	if err != nil {
		return fail(StateAnalyzing, err)
	}
	res.VideoURL = videoURL
	obs(Event{SimulationID: id, State: StateAnalyzing, VideoID: up.VideoID, MP4Path: mp4Path, VideoURL: videoURL})

	err = c.WatchAnalysis(ctx, id, func(status string) {
		obs(Event{SimulationID: id, State: StateAnalyzing, Status: status})
	})
	if err != nil {
		return fail(StateAnalyzing, err)
	}

	obs(Event{SimulationID: id, State: StateComplete, VideoID: up.VideoID, MP4Path: mp4Path, VideoURL: videoURL})
	c.logger.InfoContext(ctx, "simulation complete", "simulation_id", id)
	return res, nil
}

// IsCompleteStatus reports whether a simulation status means analysis finished.
func IsCompleteStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "complete", "completed", "ready":
		return true
	}
	return false
}

func IsErrorStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "error", "failed":
		return true
	}
	return false
}

// fatalStatus separates client errors, which will not heal by polling,
// from transient ones.
func fatalStatus(err error) bool {
	code := transport.StatusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// storageName keeps the base name safe for an object path.
func storageName(path string) string {
	name := filepath.Base(path)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." {
		return "video"
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
