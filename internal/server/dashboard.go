package server

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialgravity/socialgravity/internal/dashboard"
	"github.com/socialgravity/socialgravity/internal/insights"
	"github.com/socialgravity/socialgravity/internal/lifecycle"
	"github.com/socialgravity/socialgravity/internal/simulation"
	"github.com/socialgravity/socialgravity/internal/store"
)

// Dashboard template data structures
type layoutData struct {
	Title   string
	CSS     template.CSS
	Content template.HTML
}

type listData struct {
	Simulations []simulationListItem
}

type simulationListItem struct {
	ID             string
	AudiencePrompt string
	State          string
	BackendStatus  string
	VideoName      string
	CreatedAt      string
	Failed         bool
	Running        bool
}

type detailData struct {
	Simulation   simulationListItem
	ErrorMessage string
	VideoURL     string
	LoadError    string
	HasResults   bool
	FitScore     string
	Metrics      []metricRow
	Personas     []personaRow
	Storytelling insightSection
	Editing      insightSection
	Retention    []retentionRow
	Synthetic    bool
}

type metricRow struct {
	Label string
	Value string
}

type personaRow struct {
	Label       string
	Name        string
	Summary     string
	Fit         string
	Watch       string
	Keywords    []string
	Explanation template.HTML
}

type insightSection struct {
	Bullets       []string
	WhatWorked    []string
	WhatToImprove []string
	Actions       []insights.Action
}

type retentionRow struct {
	Second  string
	Percent int
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	sims, err := s.store.ListSimulations(r.Context())
	if err != nil {
		http.Error(w, "Failed to load simulations", http.StatusInternalServerError)
		return
	}

	items := make([]simulationListItem, len(sims))
	for i, sim := range sims {
		items[i] = listItem(sim)
	}
	s.renderDashboard(w, "Simulations", "list.html", listData{Simulations: items})
}

func (s *Server) handleDashboardSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sim, err := s.store.GetSimulation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load simulation", http.StatusInternalServerError)
		return
	}

	data := detailData{
		Simulation:   listItem(sim),
		ErrorMessage: sim.ErrorMessage,
		VideoURL:     sim.VideoURL,
	}

	view, err := s.loadView(ctx, id, r.URL.Query().Get("refresh") == "1")
	if err != nil {
		s.logger.WarnContext(ctx, "could not load simulation results", "simulation_id", id, "error", err)
		data.LoadError = "Results could not be loaded from the backend."
	}
	if view != nil {
		fillDetail(&data, view)
	}

	s.renderDashboard(w, sim.AudiencePrompt, "detail.html", data)
}

func listItem(sim *store.Simulation) simulationListItem {
	return simulationListItem{
		ID:             sim.ID,
		AudiencePrompt: sim.AudiencePrompt,
		State:          sim.State,
		BackendStatus:  sim.BackendStatus,
		VideoName:      sim.VideoName,
		CreatedAt:      sim.CreatedAt.Format("Jan 2, 2006 15:04"),
		Failed:         lifecycle.State(sim.State) == lifecycle.StateError,
		Running:        !lifecycle.State(sim.State).Terminal(),
	}
}

func fillDetail(data *detailData, view *simulation.View) {
	data.HasResults = true
	data.FitScore = formatPercent(view.AudienceFitScore)
	if view.VideoURL != nil {
		data.VideoURL = *view.VideoURL
	}

	if g := view.GeneralMetrics; g != nil {
		data.Metrics = []metricRow{
			{"Like", formatProbability(g.LikeProbability)},
			{"Comment", formatProbability(g.CommentProbability)},
			{"Share", formatProbability(g.ShareProbability)},
			{"Save", formatProbability(g.SaveProbability)},
			{"Follow", formatProbability(g.FollowProbability)},
			{"Swipe away", formatProbability(g.SwipeProbability)},
			{"Avg. watch time", formatSeconds(g.WatchTimeSeconds)},
		}
	}

	for _, m := range view.PersonaMetrics {
		row := personaRow{
			Label:       m.Label,
			Fit:         formatPercent(m.FitPercent),
			Watch:       formatPercent(m.WatchPercent),
			Keywords:    m.Keywords,
			Explanation: renderMarkdown(m.Explanation),
		}
		for _, p := range view.Personas {
			if p.PersonaID == m.PersonaID {
				row.Name, row.Summary = p.Name, p.Summary
				break
			}
		}
		data.Personas = append(data.Personas, row)
	}

	data.Storytelling = section(view.Storytelling)
	data.Editing = section(view.Editing)

	data.Synthetic = view.Retention.Synthetic
	for _, p := range view.Retention.Points {
		data.Retention = append(data.Retention, retentionRow{
			Second:  fmt.Sprintf("%.0fs", p.Second),
			Percent: int(p.Retention*100 + 0.5),
		})
	}
}

func section(b insights.Bucket) insightSection {
	return insightSection{
		Bullets:       insights.Summarize(b, insights.SummaryBullets),
		WhatWorked:    b.WhatWorked,
		WhatToImprove: b.WhatToImprove,
		Actions:       b.ImprovementActions,
	}
}

func (s *Server) renderDashboard(w http.ResponseWriter, title, contentTemplate string, data any) {
	var contentBuf bytes.Buffer
	if err := dashboard.Render(&contentBuf, contentTemplate, data); err != nil {
		s.logger.Error("failed to render template", "template", contentTemplate, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	css, err := dashboard.Stylesheet()
	if err != nil {
		http.Error(w, "Failed to load styles", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	layout := layoutData{
		Title:   title,
		CSS:     template.CSS(css),
		Content: template.HTML(contentBuf.String()),
	}
	if err := dashboard.Render(w, "layout.html", layout); err != nil {
		s.logger.Error("failed to render layout", "error", err)
	}
}

func formatPercent(p *int) string {
	if p == nil {
		return "–"
	}
	return fmt.Sprintf("%d%%", *p)
}

func formatProbability(v *float64) string {
	if v == nil {
		return "–"
	}
	return fmt.Sprintf("%.0f%%", *v*100)
}

func formatSeconds(v *float64) string {
	if v == nil {
		return "–"
	}
	return fmt.Sprintf("%.1fs", *v)
}
