package simulation

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrInvalidPayload = errors.New("aggregate is not valid JSON")

// OptionState tags a loosely-typed JSON field read from the backend.
type OptionState int

const (
	Absent OptionState = iota
	Valid
	Invalid
)

// Optional holds a nested JSON object that may arrive as a structured
// value, as a JSON-encoded string, or not at all. Invalid values are
// treated as absent by every consumer.
type Optional struct {
	State OptionState
	Value gjson.Result
}

func (o Optional) Present() bool {
	return o.State == Valid
}

// Get reads a path from the value, returning an empty result when the
// optional is not present.
func (o Optional) Get(path string) gjson.Result {
	if !o.Present() {
		return gjson.Result{}
	}
	return o.Value.Get(path)
}

func parseOptional(r gjson.Result) Optional {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return Optional{State: Absent}
	case r.IsObject() || r.IsArray():
		return Optional{State: Valid, Value: r}
	case r.Type == gjson.String:
		s := strings.TrimSpace(r.String())
		if s == "" {
			return Optional{State: Absent}
		}
		if gjson.Valid(s) {
			if inner := gjson.Parse(s); inner.IsObject() || inner.IsArray() {
				return Optional{State: Valid, Value: inner}
			}
		}
	}
	return Optional{State: Invalid, Value: r}
}

// Simulation is the simulation row as read from the aggregate.
type Simulation struct {
	ID                   string
	CreatedAt            string
	Status               string
	AudiencePrompt       string
	VideoURL             *string
	VideoDurationSeconds *float64
	Transcript           *string
	ErrorMessage         *string
	VisualAnalysis       Optional
	StorytellingInsights gjson.Result
	EditingInsights      gjson.Result
	RetentionCurve       gjson.Result
}

type Persona struct {
	PersonaID string
	Label     string
	Name      string
	Summary   string
	Profile   Optional
}

type Reaction struct {
	PersonaID          string
	AlignmentScore     *float64
	WatchTimeSeconds   *float64
	LikeProbability    *float64
	CommentProbability *float64
	ShareProbability   *float64
	SaveProbability    *float64
	FollowProbability  *float64
	SwipeProbability   *float64
	EmotionalValence   *float64
	EmotionalArousal   *float64
	Keywords           []string
	Feedback           []string
	Explanation        string
}

// Aggregate is the parsed get_simulation response. Warnings lists nested
// fields that were present but unreadable.
type Aggregate struct {
	Simulation Simulation
	Personas   []Persona
	Reactions  []Reaction
	Warnings   []string
}

// ParseAggregate reads {simulation, personas, reactions}. It fails only
// when data is not valid JSON; every field inside is read leniently.
func ParseAggregate(data []byte) (*Aggregate, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(data)
	agg := &Aggregate{
		Personas:  []Persona{},
		Reactions: []Reaction{},
		Warnings:  []string{},
	}

	agg.Simulation = parseSimulation(root.Get("simulation"))
	if agg.Simulation.VisualAnalysis.State == Invalid {
		agg.Warnings = append(agg.Warnings, "simulation.visual_analysis is not parseable JSON; ignoring it")
	}

	for i, row := range listOf(root.Get("personas")) {
		p := parsePersona(row)
		if p.Profile.State == Invalid {
			agg.Warnings = append(agg.Warnings, "personas["+strconv.Itoa(i)+"].profile is not parseable JSON; ignoring it")
		}
		agg.Personas = append(agg.Personas, p)
	}
	for _, row := range listOf(root.Get("reactions")) {
		agg.Reactions = append(agg.Reactions, parseReaction(row))
	}
	return agg, nil
}

func parseSimulation(r gjson.Result) Simulation {
	return Simulation{
		ID:                   str(r, "id"),
		CreatedAt:            str(r, "created_at"),
		Status:               str(r, "status"),
		AudiencePrompt:       str(r, "audience_prompt", "audience_description"),
		VideoURL:             strPtr(r, "video_url"),
		VideoDurationSeconds: num(r, "video_duration_seconds", "video_duration"),
		Transcript:           strPtr(r, "transcript"),
		ErrorMessage:         strPtr(r, "error_message"),
		VisualAnalysis:       parseOptional(r.Get("visual_analysis")),
		StorytellingInsights: r.Get("storytelling_insights"),
		EditingInsights:      r.Get("editing_insights"),
		RetentionCurve:       r.Get("retention_curve"),
	}
}

func parsePersona(r gjson.Result) Persona {
	return Persona{
		PersonaID: str(r, "persona_id", "id"),
		Label:     str(r, "label"),
		Name:      str(r, "name"),
		Summary:   str(r, "summary", "one_liner"),
		Profile:   parseOptional(r.Get("profile")),
	}
}

func parseReaction(r gjson.Result) Reaction {
	return Reaction{
		PersonaID:          str(r, "persona_id"),
		AlignmentScore:     num(r, "alignment_score", "fit_score"),
		WatchTimeSeconds:   num(r, "watch_time_seconds", "watch_time"),
		LikeProbability:    num(r, "like_probability", "engagement.like"),
		CommentProbability: num(r, "comment_probability", "engagement.comment"),
		ShareProbability:   num(r, "share_probability", "engagement.share"),
		SaveProbability:    num(r, "save_probability", "engagement.save"),
		FollowProbability:  num(r, "follow_probability", "engagement.follow"),
		SwipeProbability:   num(r, "swipe_probability", "engagement.swipe"),
		EmotionalValence:   num(r, "emotional_valence", "emotion.valence"),
		EmotionalArousal:   num(r, "emotional_arousal", "emotion.arousal"),
		Keywords:           strList(r, "keywords"),
		Feedback:           strList(r, "qualitative_feedback", "feedback"),
		Explanation:        str(r, "explanation", "persona_explanation"),
	}
}

// listOf returns the elements of an array, unwrapping a JSON-encoded string.
func listOf(r gjson.Result) []gjson.Result {
	if r.Type == gjson.String && gjson.Valid(r.String()) {
		r = gjson.Parse(r.String())
	}
	if !r.IsArray() {
		return nil
	}
	return r.Array()
}

func str(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		v := r.Get(k)
		if v.Type == gjson.String || v.Type == gjson.Number {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func strPtr(r gjson.Result, keys ...string) *string {
	s := str(r, keys...)
	if s == "" {
		return nil
	}
	return &s
}

// num reads the first key holding a number or a numeric string.
func num(r gjson.Result, keys ...string) *float64 {
	for _, k := range keys {
		v := r.Get(k)
		switch v.Type {
		case gjson.Number:
			f := v.Float()
			return &f
		case gjson.String:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func strList(r gjson.Result, keys ...string) []string {
	for _, k := range keys {
		v := r.Get(k)
		if v.Type == gjson.String {
			s := strings.TrimSpace(v.String())
			if strings.HasPrefix(s, "[") && gjson.Valid(s) {
				v = gjson.Parse(s)
			} else if s != "" {
				return []string{s}
			}
		}
		if !v.IsArray() {
			continue
		}
		out := []string{}
		for _, item := range v.Array() {
			if item.Type != gjson.String {
				continue
			}
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}
