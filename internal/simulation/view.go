package simulation

import (
	"encoding/json"

	"github.com/socialgravity/socialgravity/internal/insights"
)

// Engagement holds per-reaction or averaged engagement probabilities.
// Fields are nil when the backend did not report them.
type Engagement struct {
	LikeProbability    *float64 `json:"likeProbability"`
	CommentProbability *float64 `json:"commentProbability"`
	ShareProbability   *float64 `json:"shareProbability"`
	SaveProbability    *float64 `json:"saveProbability"`
	FollowProbability  *float64 `json:"followProbability"`
	SwipeProbability   *float64 `json:"swipeProbability"`
	WatchTimeSeconds   *float64 `json:"watchTimeSeconds"`
}

type VisualAnalysis struct {
	Style     string          `json:"style,omitempty"`
	Pacing    string          `json:"pacing,omitempty"`
	TextUsage string          `json:"textUsage,omitempty"`
	Quality   string          `json:"quality,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Raw       json.RawMessage `json:"raw"`
}

type PersonaSummary struct {
	PersonaID        string          `json:"personaId"`
	Label            string          `json:"label"`
	Name             string          `json:"name"`
	Summary          string          `json:"summary"`
	Profile          json.RawMessage `json:"profile"`
	AlignmentScore   *float64        `json:"alignmentScore"`
	FitPercent       *int            `json:"fitPercent"`
	WatchTimeSeconds *float64        `json:"watchTimeSeconds"`
	Engagement       *Engagement     `json:"engagement"`
}

type PersonaMetrics struct {
	PersonaID        string     `json:"personaId"`
	Label            string     `json:"label"`
	AlignmentScore   *float64   `json:"alignmentScore"`
	FitPercent       *int       `json:"fitPercent"`
	WatchTimeSeconds *float64   `json:"watchTimeSeconds"`
	WatchPercent     *int       `json:"watchPercent"`
	Engagement       Engagement `json:"engagement"`
	EmotionalValence *float64   `json:"emotionalValence"`
	EmotionalArousal *float64   `json:"emotionalArousal"`
	Keywords         []string   `json:"keywords"`
	Feedback         []string   `json:"feedback"`
	Explanation      string     `json:"explanation"`
}

type RetentionPoint struct {
	Second    float64 `json:"second"`
	Retention float64 `json:"retention"`
}

// Retention is the chart series. Synthetic marks an estimated curve built
// from mean watch time rather than one measured by the backend.
type Retention struct {
	Points    []RetentionPoint `json:"points"`
	Synthetic bool             `json:"synthetic"`
}

// View is the renderable simulation model.
type View struct {
	ID                   string           `json:"id"`
	CreatedAt            string           `json:"createdAt"`
	Status               string           `json:"status"`
	AudiencePrompt       string           `json:"audiencePrompt"`
	VideoURL             *string          `json:"videoUrl"`
	VideoDurationSeconds *float64         `json:"videoDurationSeconds"`
	Transcript           *string          `json:"transcript"`
	ErrorMessage         *string          `json:"errorMessage"`
	VisualAnalysis       *VisualAnalysis  `json:"visualAnalysis"`
	AudienceFitScore     *int             `json:"audienceFitScore"`
	GeneralMetrics       *Engagement      `json:"generalMetrics"`
	Personas             []PersonaSummary `json:"personas"`
	PersonaMetrics       []PersonaMetrics `json:"personaMetrics"`
	Storytelling         insights.Bucket  `json:"storytellingInsights"`
	Editing              insights.Bucket  `json:"editingInsights"`
	Retention            Retention        `json:"retention"`
}
