package simulation

import (
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/socialgravity/socialgravity/internal/insights"
	"github.com/socialgravity/socialgravity/internal/stats"
)

// Mapper turns a parsed aggregate into a View. It holds no state besides
// its logger, so mapping the same aggregate twice yields equal views.
type Mapper struct {
	logger *slog.Logger
}

func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// Map maps agg with the default logger.
func Map(agg *Aggregate) *View {
	return NewMapper(nil).Map(agg)
}

// MapJSON parses and maps a raw get_simulation response.
func (m *Mapper) MapJSON(data []byte) (*View, error) {
	agg, err := ParseAggregate(data)
	if err != nil {
		return nil, err
	}
	return m.Map(agg), nil
}

// Map never fails. Missing fields leave derived numbers nil and lists empty.
func (m *Mapper) Map(agg *Aggregate) *View {
	if agg == nil {
		agg = &Aggregate{}
	}
	sim := agg.Simulation
	for _, w := range agg.Warnings {
		m.logger.Warn("malformed simulation payload", "simulation_id", sim.ID, "detail", w)
	}

	view := &View{
		ID:                   sim.ID,
		CreatedAt:            sim.CreatedAt,
		Status:               sim.Status,
		AudiencePrompt:       sim.AudiencePrompt,
		VideoURL:             sim.VideoURL,
		VideoDurationSeconds: sim.VideoDurationSeconds,
		Transcript:           sim.Transcript,
		ErrorMessage:         sim.ErrorMessage,
		Personas:             make([]PersonaSummary, 0, len(agg.Personas)),
		PersonaMetrics:       make([]PersonaMetrics, 0, len(agg.Reactions)),
		Retention:            Retention{Points: []RetentionPoint{}},
	}
	if sim.VisualAnalysis.Present() {
		view.VisualAnalysis = mapVisual(sim.VisualAnalysis.Value)
	}

	// First reaction wins when a persona has several.
	reactionByPersona := make(map[string]*Reaction, len(agg.Reactions))
	for i := range agg.Reactions {
		r := &agg.Reactions[i]
		if _, ok := reactionByPersona[r.PersonaID]; !ok {
			reactionByPersona[r.PersonaID] = r
		}
	}
	personaByID := make(map[string]*Persona, len(agg.Personas))
	for i := range agg.Personas {
		p := &agg.Personas[i]
		if _, ok := personaByID[p.PersonaID]; !ok {
			personaByID[p.PersonaID] = p
		}
	}

	for _, p := range agg.Personas {
		s := PersonaSummary{
			PersonaID: p.PersonaID,
			Label:     p.Label,
			Name:      p.Name,
			Summary:   p.Summary,
		}
		if p.Profile.Present() {
			s.Profile = json.RawMessage(p.Profile.Value.Raw)
		}
		if r, ok := reactionByPersona[p.PersonaID]; ok {
			e := engagementOf(r)
			s.Engagement = &e
			s.AlignmentScore = r.AlignmentScore
			s.FitPercent = stats.PercentPtr(r.AlignmentScore)
			s.WatchTimeSeconds = r.WatchTimeSeconds
		}
		view.Personas = append(view.Personas, s)
	}

	for i := range agg.Reactions {
		r := &agg.Reactions[i]
		view.PersonaMetrics = append(view.PersonaMetrics, PersonaMetrics{
			PersonaID:        r.PersonaID,
			Label:            labelFor(r.PersonaID, personaByID),
			AlignmentScore:   r.AlignmentScore,
			FitPercent:       stats.PercentPtr(r.AlignmentScore),
			WatchTimeSeconds: r.WatchTimeSeconds,
			WatchPercent:     stats.PercentPtr(stats.Ratio(r.WatchTimeSeconds, sim.VideoDurationSeconds)),
			Engagement:       engagementOf(r),
			EmotionalValence: r.EmotionalValence,
			EmotionalArousal: r.EmotionalArousal,
			Keywords:         nonNil(r.Keywords),
			Feedback:         nonNil(r.Feedback),
			Explanation:      r.Explanation,
		})
	}

	if len(agg.Reactions) > 0 {
		if fit := stats.MeanPtr(collect(agg.Reactions, func(r *Reaction) *float64 { return r.AlignmentScore })); fit != nil {
			score := stats.Percent(*fit)
			view.AudienceFitScore = &score
		}
		view.GeneralMetrics = averageEngagement(agg.Reactions)
	}

	view.Storytelling = m.storytelling(sim, agg.Reactions)
	view.Editing = m.editing(sim, view.VisualAnalysis)
	view.Retention = retention(sim, view.GeneralMetrics)
	return view
}

func (m *Mapper) storytelling(sim Simulation, reactions []Reaction) insights.Bucket {
	if b := insights.Normalize(firstPresent(sim.StorytellingInsights, sim.VisualAnalysis.Get("storytelling_insights"))); !b.IsEmpty() {
		return b
	}
	var pooled []string
	for _, r := range reactions {
		pooled = append(pooled, r.Feedback...)
	}
	return insights.Bucketize(insights.Dedupe(pooled))
}

func (m *Mapper) editing(sim Simulation, va *VisualAnalysis) insights.Bucket {
	if b := insights.Normalize(firstPresent(sim.EditingInsights, sim.VisualAnalysis.Get("editing_insights"))); !b.IsEmpty() {
		return b
	}
	return insights.Bucketize(editingHeuristics(va))
}

// editingHeuristics phrases the scalar visual-analysis fields as bullets.
func editingHeuristics(va *VisualAnalysis) []string {
	if va == nil {
		return nil
	}
	var out []string
	if va.Style != "" {
		out = append(out, "Visual style reads as "+va.Style+".")
	}
	if va.Pacing != "" {
		out = append(out, "Pacing feels "+va.Pacing+".")
	}
	if va.TextUsage != "" {
		out = append(out, "On-screen text: "+va.TextUsage+".")
	}
	if va.Quality != "" {
		out = append(out, "Production quality is "+va.Quality+".")
	}
	return out
}

func mapVisual(v gjson.Result) *VisualAnalysis {
	return &VisualAnalysis{
		Style:     str(v, "style", "visual_style"),
		Pacing:    str(v, "pacing", "editing_pace"),
		TextUsage: str(v, "text_usage", "text_overlay"),
		Quality:   str(v, "quality", "production_quality"),
		Summary:   str(v, "summary"),
		Raw:       json.RawMessage(v.Raw),
	}
}

// retention prefers a backend curve. Without one it estimates a curve from
// mean watch time over duration, and leaves the series empty when either
// is unknown.
func retention(sim Simulation, general *Engagement) Retention {
	if pts := parseCurve(firstPresent(sim.RetentionCurve, sim.VisualAnalysis.Get("retention_curve")), sim.VideoDurationSeconds); len(pts) > 0 {
		return Retention{Points: pts}
	}
	if general == nil {
		return Retention{Points: []RetentionPoint{}}
	}
	seed := stats.Ratio(general.WatchTimeSeconds, sim.VideoDurationSeconds)
	if seed == nil {
		return Retention{Points: []RetentionPoint{}}
	}

	curve := stats.SyntheticRetention(*seed)
	pts := make([]RetentionPoint, len(curve))
	for i, v := range curve {
		pts[i] = RetentionPoint{Second: secondAt(i, len(curve), sim.VideoDurationSeconds), Retention: v}
	}
	return Retention{Points: pts, Synthetic: true}
}

// parseCurve accepts [0.9, 0.8, ...] or [{second, retention}, ...]. Values
// above 1 are read as percentages.
func parseCurve(raw gjson.Result, duration *float64) []RetentionPoint {
	items := listOf(raw)
	pts := make([]RetentionPoint, 0, len(items))
	for i, item := range items {
		var p RetentionPoint
		switch {
		case item.Type == gjson.Number:
			p = RetentionPoint{Second: secondAt(i, len(items), duration), Retention: item.Float()}
		case item.IsObject():
			v := num(item, "retention", "value", "pct")
			if v == nil {
				continue
			}
			p.Retention = *v
			if s := num(item, "second", "timestamp", "t"); s != nil {
				p.Second = *s
			} else {
				p.Second = secondAt(i, len(items), duration)
			}
		default:
			continue
		}
		if p.Retention > 1 {
			p.Retention /= 100
		}
		p.Retention = stats.Clamp(p.Retention, 0, 1)
		pts = append(pts, p)
	}
	return pts
}

// secondAt spreads n points evenly over the video, or uses the index when
// the duration is unknown.
func secondAt(i, n int, duration *float64) float64 {
	if duration == nil || *duration <= 0 || n < 2 {
		return float64(i)
	}
	return stats.Round2(*duration * float64(i) / float64(n-1))
}

func averageEngagement(reactions []Reaction) *Engagement {
	mean := func(get func(*Reaction) *float64) *float64 {
		return stats.MeanPtr(collect(reactions, get))
	}
	return &Engagement{
		LikeProbability:    mean(func(r *Reaction) *float64 { return r.LikeProbability }),
		CommentProbability: mean(func(r *Reaction) *float64 { return r.CommentProbability }),
		ShareProbability:   mean(func(r *Reaction) *float64 { return r.ShareProbability }),
		SaveProbability:    mean(func(r *Reaction) *float64 { return r.SaveProbability }),
		FollowProbability:  mean(func(r *Reaction) *float64 { return r.FollowProbability }),
		SwipeProbability:   mean(func(r *Reaction) *float64 { return r.SwipeProbability }),
		WatchTimeSeconds:   mean(func(r *Reaction) *float64 { return r.WatchTimeSeconds }),
	}
}

func engagementOf(r *Reaction) Engagement {
	return Engagement{
		LikeProbability:    r.LikeProbability,
		CommentProbability: r.CommentProbability,
		ShareProbability:   r.ShareProbability,
		SaveProbability:    r.SaveProbability,
		FollowProbability:  r.FollowProbability,
		SwipeProbability:   r.SwipeProbability,
		WatchTimeSeconds:   r.WatchTimeSeconds,
	}
}

func collect(reactions []Reaction, get func(*Reaction) *float64) []float64 {
	values := make([]float64, 0, len(reactions))
	for i := range reactions {
		if v := get(&reactions[i]); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

func labelFor(id string, personas map[string]*Persona) string {
	if p, ok := personas[id]; ok {
		if p.Label != "" {
			return p.Label
		}
		if p.Name != "" {
			return p.Name
		}
	}
	return id
}

func firstPresent(results ...gjson.Result) gjson.Result {
	for _, r := range results {
		if r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
