package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialgravity/socialgravity/internal/logging"
	"github.com/socialgravity/socialgravity/internal/server"
	"github.com/socialgravity/socialgravity/internal/store"
)

const testToken = "t0ken"

const aggregate = `{
	"simulation": {"id":"sim-1","status":"complete","video_duration_seconds":30,"video_url":"https://cdn.example/out.mp4"},
	"personas": [{"persona_id":"A","label":"Busy parent","name":"Dana"}],
	"reactions": [{"persona_id":"A","alignment_score":0.72,"watch_time_seconds":15,
		"explanation":"**Loved** the hook <script>alert(1)</script>",
		"qualitative_feedback":["great hook","too long"]}]
}`

type fakeFetcher struct {
	payload string
	err     error
	calls   int
}

func (f *fakeFetcher) GetSimulation(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.payload), nil
}

func setup(t *testing.T, fetcher server.Fetcher) (*server.Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveSimulation(context.Background(), &store.Simulation{
		ID: "sim-1", AudiencePrompt: "busy parents", State: "complete",
	}))

	opts := server.Options{Store: s, Logger: logging.Discard(), Token: testToken}
	if fetcher != nil {
		opts.Fetcher = fetcher
	}
	return server.New(opts), s
}

func get(t *testing.T, srv *server.Server, path string, withToken bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if withToken {
		req.AddCookie(&http.Cookie{Name: "sg_token", Value: testToken})
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := setup(t, nil)
	rec := get(t, srv, "/health", false)

	require.Equal(t, http.StatusOK, rec.Code)
	var body server.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.SimulationsCount)
	assert.Positive(t, body.DBSizeBytes)
}

func TestDashboard_RequiresToken(t *testing.T) {
	srv, _ := setup(t, nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/dashboard", false).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/dashboard?token=wrong", false).Code)

	rec := get(t, srv, "/dashboard/api/simulations", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestDashboard_QueryTokenSetsCookieAndRedirects(t *testing.T) {
	srv, _ := setup(t, nil)
	rec := get(t, srv, "/dashboard?token="+testToken, false)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testToken, cookies[0].Value)
}

func TestDashboard_BearerToken(t *testing.T) {
	srv, _ := setup(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/dashboard/api/simulations", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Simulations []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"simulations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Simulations, 1)
	assert.Equal(t, "sim-1", body.Simulations[0].ID)
	assert.Equal(t, "complete", body.Simulations[0].State)
}

func TestDashboard_ListPage(t *testing.T) {
	srv, _ := setup(t, nil)
	rec := get(t, srv, "/dashboard", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "busy parents")
	assert.Contains(t, rec.Body.String(), "/dashboard/simulations/sim-1")
}

func TestDashboard_MarksRunningSimulations(t *testing.T) {
	srv, s := setup(t, &fakeFetcher{err: errors.New("no results yet")})
	require.NoError(t, s.SaveSimulation(context.Background(), &store.Simulation{
		ID: "sim-2", AudiencePrompt: "night owls", State: "analyzing",
	}))

	list := get(t, srv, "/dashboard", true).Body.String()
	assert.Equal(t, 1, strings.Count(list, `class="running"`))

	running := get(t, srv, "/dashboard/simulations/sim-2", true).Body.String()
	assert.Contains(t, running, "sg watch sim-2")

	done := get(t, srv, "/dashboard/simulations/sim-1", true).Body.String()
	assert.NotContains(t, done, "Still running")
}

func TestDashboard_DetailFetchesAndCaches(t *testing.T) {
	fetcher := &fakeFetcher{payload: aggregate}
	srv, s := setup(t, fetcher)

	rec := get(t, srv, "/dashboard/simulations/sim-1", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "72%")
	assert.Contains(t, body, "<strong>Loved</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "estimated")
	assert.Equal(t, 1, fetcher.calls)

	snap, err := s.GetSnapshot(context.Background(), "sim-1")
	require.NoError(t, err)
	assert.JSONEq(t, aggregate, string(snap.Payload))

	// Cached from now on unless refresh is asked for
	get(t, srv, "/dashboard/simulations/sim-1", true)
	assert.Equal(t, 1, fetcher.calls)
	get(t, srv, "/dashboard/simulations/sim-1?refresh=1", true)
	assert.Equal(t, 2, fetcher.calls)
}

func TestDashboard_DetailWithoutResults(t *testing.T) {
	srv, _ := setup(t, &fakeFetcher{err: errors.New("backend down")})
	rec := get(t, srv, "/dashboard/simulations/sim-1", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be loaded")
}

func TestDashboard_DetailNotFound(t *testing.T) {
	srv, _ := setup(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/dashboard/simulations/nope", true).Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/dashboard/api/simulations/nope", true).Code)
}

func TestAPISimulation_ServesView(t *testing.T) {
	srv, s := setup(t, nil)
	require.NoError(t, s.SaveSnapshot(context.Background(), "sim-1", []byte(aggregate)))

	rec := get(t, srv, "/dashboard/api/simulations/sim-1", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		View struct {
			AudienceFitScore *int `json:"audienceFitScore"`
			PersonaMetrics   []struct {
				Label string `json:"label"`
			} `json:"personaMetrics"`
		} `json:"view"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.View.AudienceFitScore)
	assert.Equal(t, 72, *body.View.AudienceFitScore)
	require.Len(t, body.View.PersonaMetrics, 1)
	assert.Equal(t, "Busy parent", body.View.PersonaMetrics[0].Label)
}

func TestAPISimulation_NoResultsYet(t *testing.T) {
	srv, _ := setup(t, nil)
	rec := get(t, srv, "/dashboard/api/simulations/sim-1", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"view":null`))
}
