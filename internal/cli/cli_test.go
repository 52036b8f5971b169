package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/socialgravity/socialgravity/internal/backend"
	"github.com/socialgravity/socialgravity/internal/lifecycle"
	"github.com/socialgravity/socialgravity/internal/logging"
	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
	"github.com/socialgravity/socialgravity/internal/trial"
)

func TestMain(m *testing.M) {
	logger = logging.Discard()
	os.Exit(m.Run())
}

const aggregate = `{
	"simulation": {"id":"sim-1","status":"complete","audience_prompt":"busy parents","video_duration_seconds":30},
	"personas": [
		{"persona_id":"A","label":"Busy parent"},
		{"persona_id":"B","name":"Night owl"}
	],
	"reactions": [
		{"persona_id":"A","alignment_score":0.8,"watch_time_seconds":15,"like_probability":0.5,
		 "keywords":["hook","music"],"qualitative_feedback":["great hook","too long"]},
		{"persona_id":"B","alignment_score":0.6,"watch_time_seconds":9,"like_probability":0.3,
		 "qualitative_feedback":["nice colors"]}
	]
}`

// mp4Header is enough of an ISO BMFF ftyp box for content sniffing.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
	'm', 'p', '4', '1', 0x00, 0x00, 0x00, 0x08, 'f', 'r', 'e', 'e',
}

type fakeBackend struct {
	mu sync.Mutex

	started   int
	jobStatus string
	jobError  string

	// statuses are served in order per simulation; the last one repeats.
	statuses map[string][]string
	reads    map[string]int

	payload string
	fetches int
}

func (f *fakeBackend) StartSimulation(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return "sim-1", nil
}

func (f *fakeBackend) UploadVideo(_ context.Context, _ string, r io.Reader, _ string) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func (f *fakeBackend) PublicURL(path string) string {
	return "https://cdn.example/" + path
}

func (f *fakeBackend) InsertVideoJob(_ context.Context, _ backend.VideoJob) error {
	return nil
}

func (f *fakeBackend) RequestVideoConversion(_ context.Context, _ string) (backend.ConversionAck, error) {
	return backend.ConversionAck{Success: true}, nil
}

func (f *fakeBackend) VideoJob(_ context.Context, videoID string) (*backend.VideoJob, error) {
	status := f.jobStatus
	if status == "" {
		status = backend.VideoStatusReady
	}
	return &backend.VideoJob{ID: videoID, Status: status, MP4Path: "sim-1/out.mp4", ErrorMessage: f.jobError}, nil
}

func (f *fakeBackend) SetVideoURL(_ context.Context, _, _ string, _ float64) error {
	return nil
}

func (f *fakeBackend) TranscribeVideo(_ context.Context, _ string) error {
	return nil
}

func (f *fakeBackend) SimulationStatus(_ context.Context, id string) (*backend.SimulationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reads == nil {
		f.reads = map[string]int{}
	}
	seq, ok := f.statuses[id]
	if !ok {
		seq = []string{"complete"}
	}
	i := f.reads[id]
	f.reads[id]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	st := &backend.SimulationState{ID: id, Status: seq[i]}
	if lifecycle.IsErrorStatus(st.Status) {
		st.ErrorMessage = "persona generation failed"
	}
	return st, nil
}

func (f *fakeBackend) GetSimulation(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return []byte(f.payload), nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestController(fb *fakeBackend) *lifecycle.Controller {
	return lifecycle.New(fb, lifecycle.Options{
		ConvertInterval:    time.Millisecond,
		ConvertRetry:       time.Millisecond,
		ConvertMaxAttempts: 3,
		AnalysisInterval:   time.Millisecond,
		MaxVideoSeconds:    180,
		Logger:             logging.Discard(),
	})
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, mp4Header, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSimulation_RecordsHistoryAndCachesResults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fb := &fakeBackend{payload: aggregate}
	in := lifecycle.Input{AudiencePrompt: "busy parents", VideoPath: writeVideo(t), DurationSeconds: 30}

	var out bytes.Buffer
	view, err := runSimulation(ctx, &out, s, newTestController(fb), fb, in, "")
	if err != nil {
		t.Fatalf("runSimulation failed: %v", err)
	}

	if view.AudienceFitScore == nil || *view.AudienceFitScore != 70 {
		t.Errorf("expected fit score 70, got %v", view.AudienceFitScore)
	}

	sim, err := s.GetSimulation(ctx, "sim-1")
	if err != nil {
		t.Fatalf("simulation not recorded: %v", err)
	}
	if sim.State != "complete" {
		t.Errorf("expected state complete, got %s", sim.State)
	}
	if sim.VideoName != "clip.mp4" {
		t.Errorf("expected video name clip.mp4, got %s", sim.VideoName)
	}
	if sim.VideoURL != "https://cdn.example/sim-1/out.mp4" {
		t.Errorf("unexpected video url %s", sim.VideoURL)
	}
	if sim.MP4Path != "sim-1/out.mp4" {
		t.Errorf("unexpected mp4 path %s", sim.MP4Path)
	}

	if _, err := s.GetSnapshot(ctx, "sim-1"); err != nil {
		t.Errorf("expected cached snapshot: %v", err)
	}

	used, err := trial.New(s).Used(ctx)
	if err != nil || !used {
		t.Errorf("expected free simulation to be marked used, got %v (%v)", used, err)
	}

	for _, line := range []string{"Simulation sim-1 created", "Uploading video", "Converting video", "Analysis complete"} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("progress missing %q\n\nGot:\n%s", line, out.String())
		}
	}
}

func TestRunSimulation_TrialUsedBlocksAnonymousRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := trial.New(s).MarkUsed(ctx); err != nil {
		t.Fatal(err)
	}
	fb := &fakeBackend{payload: aggregate}
	in := lifecycle.Input{AudiencePrompt: "busy parents", VideoPath: writeVideo(t)}

	_, err := runSimulation(ctx, io.Discard, s, newTestController(fb), fb, in, "")
	if !errors.Is(err, trial.ErrTrialUsed) {
		t.Fatalf("expected ErrTrialUsed, got %v", err)
	}
	if fb.started != 0 {
		t.Errorf("backend should not be called, got %d starts", fb.started)
	}

	// A user id bypasses the gate
	if _, err := runSimulation(ctx, io.Discard, s, newTestController(fb), fb, in, "user-42"); err != nil {
		t.Fatalf("expected run with user id to succeed: %v", err)
	}
}

func TestRunSimulation_InvalidInputKeepsTrial(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fb := &fakeBackend{payload: aggregate}
	in := lifecycle.Input{AudiencePrompt: "  ", VideoPath: writeVideo(t)}

	_, err := runSimulation(ctx, io.Discard, s, newTestController(fb), fb, in, "")
	if err == nil || !strings.Contains(err.Error(), "Check your input") {
		t.Fatalf("expected validation message, got %v", err)
	}
	if used, _ := trial.New(s).Used(ctx); used {
		t.Error("invalid input should not spend the free simulation")
	}
}

func TestRunSimulation_ConversionFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fb := &fakeBackend{jobStatus: backend.VideoStatusError, jobError: "codec unsupported"}
	in := lifecycle.Input{AudiencePrompt: "busy parents", VideoPath: writeVideo(t)}

	_, err := runSimulation(ctx, io.Discard, s, newTestController(fb), fb, in, "user-1")
	if err == nil || !strings.Contains(err.Error(), "codec unsupported") {
		t.Fatalf("expected conversion error, got %v", err)
	}

	sim, err := s.GetSimulation(ctx, "sim-1")
	if err != nil {
		t.Fatal(err)
	}
	if sim.State != "error" {
		t.Errorf("expected state error, got %s", sim.State)
	}
	if !strings.Contains(sim.ErrorMessage, "codec unsupported") {
		t.Errorf("expected error message recorded, got %q", sim.ErrorMessage)
	}
	if fb.fetches != 0 {
		t.Errorf("results should not be fetched after a failure")
	}
}

func TestWatchSimulations_ConcurrentOutcomes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"sim-a", "sim-b"} {
		if err := s.SaveSimulation(ctx, &store.Simulation{ID: id, AudiencePrompt: "x", State: "analyzing"}); err != nil {
			t.Fatal(err)
		}
	}
	fb := &fakeBackend{
		payload: aggregate,
		statuses: map[string][]string{
			"sim-a": {"analyzing", "complete"},
			"sim-b": {"analyzing", "failed"},
		},
	}

	var out bytes.Buffer
	err := watchSimulations(ctx, &out, s, newTestController(fb), fb, []string{"sim-a", "sim-b"})
	if err == nil || err.Error() != "1 of 2 simulations failed" {
		t.Fatalf("expected one failure, got %v", err)
	}

	a, _ := s.GetSimulation(ctx, "sim-a")
	if a.State != "complete" {
		t.Errorf("sim-a: expected complete, got %s", a.State)
	}
	if _, err := s.GetSnapshot(ctx, "sim-a"); err != nil {
		t.Errorf("sim-a: expected cached results: %v", err)
	}

	b, _ := s.GetSimulation(ctx, "sim-b")
	if b.State != "error" || !strings.Contains(b.ErrorMessage, "persona generation failed") {
		t.Errorf("sim-b: expected error with message, got %s %q", b.State, b.ErrorMessage)
	}
	if _, err := s.GetSnapshot(ctx, "sim-b"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("sim-b: expected no cached results, got %v", err)
	}

	if !strings.Contains(out.String(), "sim-a: complete") {
		t.Errorf("missing completion line\n\nGot:\n%s", out.String())
	}
}

func TestCheckStatus_RecordsTerminalState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.SaveSimulation(ctx, &store.Simulation{ID: "sim-1", AudiencePrompt: "x", State: "analyzing"}); err != nil {
		t.Fatal(err)
	}
	fb := &fakeBackend{statuses: map[string][]string{"sim-1": {"completed"}}}

	var out bytes.Buffer
	if err := checkStatus(ctx, &out, s, fb, "sim-1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "STATUS: completed") || !strings.Contains(out.String(), "sg results sim-1") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	sim, _ := s.GetSimulation(ctx, "sim-1")
	if sim.State != "complete" || sim.BackendStatus != "completed" {
		t.Errorf("expected complete/completed, got %s/%s", sim.State, sim.BackendStatus)
	}

	// Untracked simulations are still reported
	if err := checkStatus(ctx, io.Discard, s, fb, "elsewhere"); err != nil {
		t.Errorf("untracked simulation should not fail: %v", err)
	}
}

func TestResolveView_CachedThenRefreshed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.SaveSimulation(ctx, &store.Simulation{ID: "sim-1", AudiencePrompt: "x"}); err != nil {
		t.Fatal(err)
	}
	fb := &fakeBackend{payload: aggregate}
	newFetcher := func() (fetcher, error) { return fb, nil }

	if _, err := resolveView(ctx, s, newFetcher, "sim-1", false); err != nil {
		t.Fatal(err)
	}
	if _, err := resolveView(ctx, s, newFetcher, "sim-1", false); err != nil {
		t.Fatal(err)
	}
	if fb.fetches != 1 {
		t.Errorf("expected one fetch while cached, got %d", fb.fetches)
	}

	if _, err := resolveView(ctx, s, newFetcher, "sim-1", true); err != nil {
		t.Fatal(err)
	}
	if fb.fetches != 2 {
		t.Errorf("expected refresh to fetch again, got %d", fb.fetches)
	}

	noBackend := func() (fetcher, error) { return nil, errors.New("project URL is required") }
	if _, err := resolveView(ctx, s, noBackend, "other", false); err == nil {
		t.Error("expected an error when nothing is cached and no backend is configured")
	}
}

func mappedView(t *testing.T) *simulation.View {
	t.Helper()
	view, err := simulation.NewMapper(logger).MapJSON([]byte(aggregate))
	if err != nil {
		t.Fatal(err)
	}
	return view
}

func TestPrintView(t *testing.T) {
	var out bytes.Buffer
	printView(&out, mappedView(t))

	expectations := []string{
		"SIMULATION: sim-1",
		"AUDIENCE: busy parents",
		"AUDIENCE FIT: 70%",
		"Like",
		"40%",
		"Busy parent",
		"Night owl",
		"hook, music",
		"STORYTELLING",
		"RETENTION (estimated from watch time)",
	}
	for _, expected := range expectations {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("output missing expected content: %s\n\nGot:\n%s", expected, out.String())
		}
	}
}

func TestPrintSimulations(t *testing.T) {
	var empty bytes.Buffer
	printSimulations(&empty, nil)
	if !strings.Contains(empty.String(), "No simulations yet.") {
		t.Errorf("unexpected empty output:\n%s", empty.String())
	}

	var out bytes.Buffer
	printSimulations(&out, []*store.Simulation{{
		ID: "sim-1", AudiencePrompt: "busy parents", State: "analyzing", BackendStatus: "processing",
		VideoName: "clip.mp4", CreatedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}})
	for _, expected := range []string{"ID", "sim-1", "ANALYZING", "processing", "clip.mp4", "2026-01-02 03:04"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("table missing %q\n\nGot:\n%s", expected, out.String())
		}
	}
}

func TestExportCSV(t *testing.T) {
	var out bytes.Buffer
	if err := exportCSV(&out, mappedView(t)); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "persona_id,label,fit_percent") {
		t.Errorf("unexpected header %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "A,Busy parent,80,15,50,0.5") {
		t.Errorf("unexpected first row %s", lines[1])
	}
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	if err := exportXLSX(path, mappedView(t)); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	want := []string{"Summary", "Personas", "Insights", "Retention"}
	if got := f.GetSheetList(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected sheets %v, got %v", want, got)
	}

	fit, err := f.GetCellValue("Summary", "B5")
	if err != nil || fit != "70" {
		t.Errorf("expected fit 70 in Summary!B5, got %q (%v)", fit, err)
	}

	rows, err := f.GetRows("Personas")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2][1] != "Night owl" {
		t.Errorf("unexpected persona rows %v", rows)
	}

	retention, err := f.GetRows("Retention")
	if err != nil {
		t.Fatal(err)
	}
	if len(retention) != 11 || retention[1][2] != "true" {
		t.Errorf("expected 10 synthetic retention points, got %v", retention)
	}
}

func TestPrintDashboardURL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tokenFile := filepath.Join(t.TempDir(), ".sg-token")

	if err := printDashboardURL(ctx, io.Discard, s, tokenFile); err == nil {
		t.Error("expected an error without a token file")
	}

	if err := os.WriteFile(tokenFile, []byte("abcd1234\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting(ctx, serverURLKey, "http://localhost:9090"); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printDashboardURL(ctx, &out, s, tokenFile); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "http://localhost:9090/dashboard?token=abcd1234") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestPromptValidators(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"", 0, false},
		{" 42.5 ", 42.5, false},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range tests {
		got, err := parseDuration(tc.input)
		if (err != nil) != tc.wantErr || got != tc.expected {
			t.Errorf("parseDuration(%q) = %v, %v", tc.input, got, err)
		}
	}

	if validateAudience("   ") == nil {
		t.Error("blank audience should be rejected")
	}
	if validateVideoPath(t.TempDir()) == nil {
		t.Error("directory should be rejected")
	}
	if validateVideoPath(writeVideo(t)) != nil {
		t.Error("existing file should be accepted")
	}
}
