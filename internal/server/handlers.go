package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	SimulationsCount int    `json:"simulations_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sims, err := s.store.ListSimulations(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}

	// Database size is only known for the SQLite store
	var dbSize int64
	if withDB, ok := s.store.(interface{ DB() *sql.DB }); ok {
		row := withDB.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
		if err := row.Scan(&dbSize); err != nil {
			dbSize = 0
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		SimulationsCount: len(sims),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

type apiSimulation struct {
	ID              string  `json:"id"`
	AudiencePrompt  string  `json:"audience_prompt"`
	State           string  `json:"state"`
	BackendStatus   string  `json:"backend_status,omitempty"`
	VideoName       string  `json:"video_name,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	VideoURL        string  `json:"video_url,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toAPISimulation(sim *store.Simulation) apiSimulation {
	return apiSimulation{
		ID:              sim.ID,
		AudiencePrompt:  sim.AudiencePrompt,
		State:           sim.State,
		BackendStatus:   sim.BackendStatus,
		VideoName:       sim.VideoName,
		DurationSeconds: sim.DurationSeconds,
		VideoURL:        sim.VideoURL,
		ErrorMessage:    sim.ErrorMessage,
		CreatedAt:       sim.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       sim.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleAPIList(w http.ResponseWriter, r *http.Request) {
	sims, err := s.store.ListSimulations(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load simulations"})
		return
	}

	out := make([]apiSimulation, len(sims))
	for i, sim := range sims {
		out[i] = toAPISimulation(sim)
	}
	writeJSON(w, http.StatusOK, map[string]any{"simulations": out})
}

func (s *Server) handleAPISimulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sim, err := s.store.GetSimulation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "simulation not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load simulation"})
		return
	}

	view, err := s.loadView(ctx, id, r.URL.Query().Get("refresh") == "1")
	if err != nil {
		s.logger.WarnContext(ctx, "could not load simulation results", "simulation_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"simulation": toAPISimulation(sim),
		"view":       view,
	})
}

// loadView maps the cached aggregate. It fetches from the backend when
// asked to refresh or when nothing is cached, if a fetcher is configured.
// A nil view with a nil error means there are no results yet.
func (s *Server) loadView(ctx context.Context, id string, refresh bool) (*simulation.View, error) {
	var payload []byte

	snap, err := s.store.GetSnapshot(ctx, id)
	switch {
	case err == nil:
		payload = snap.Payload
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if (refresh || payload == nil) && s.fetcher != nil {
		fresh, err := s.fetcher.GetSimulation(ctx, id)
		if err != nil {
			if payload == nil {
				return nil, err
			}
			s.logger.WarnContext(ctx, "refresh failed, serving cached results", "simulation_id", id, "error", err)
		} else {
			payload = fresh
			if err := s.store.SaveSnapshot(ctx, id, fresh); err != nil {
				s.logger.WarnContext(ctx, "failed to cache results", "simulation_id", id, "error", err)
			}
		}
	}

	if payload == nil {
		return nil, nil
	}
	return s.mapper.MapJSON(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
