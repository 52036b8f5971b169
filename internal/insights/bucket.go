package insights

import "strings"

const (
	// MaxActions caps the improvement actions kept per bucket.
	MaxActions = 4
	// DefaultConfidence applies to actions with no numeric confidence.
	DefaultConfidence = 0.7
	// SideCap caps what_worked and what_to_improve when bucketizing a flat list.
	SideCap = 3
	// SummaryBullets is the default number of display bullets.
	SummaryBullets = 3
)

// Action is a timestamped suggestion tied to a point in the video.
type Action struct {
	Label            string  `json:"label"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Confidence       float64 `json:"confidence"`
}

// Bucket is the one shape every insight payload is reduced to. All slices
// are non-nil; ImprovementActions is sorted ascending by timestamp.
type Bucket struct {
	ShortSummary       []string `json:"short_summary"`
	WhatWorked         []string `json:"what_worked"`
	WhatToImprove      []string `json:"what_to_improve"`
	KeyChanges         []string `json:"key_changes"`
	ImprovementActions []Action `json:"improvement_actions"`
}

// Empty returns a bucket with every list allocated and empty.
func Empty() Bucket {
	return Bucket{
		ShortSummary:       []string{},
		WhatWorked:         []string{},
		WhatToImprove:      []string{},
		KeyChanges:         []string{},
		ImprovementActions: []Action{},
	}
}

// IsEmpty reports whether the bucket carries no content at all.
func (b Bucket) IsEmpty() bool {
	return len(b.ShortSummary) == 0 &&
		len(b.WhatWorked) == 0 &&
		len(b.WhatToImprove) == 0 &&
		len(b.KeyChanges) == 0 &&
		len(b.ImprovementActions) == 0
}

// Bucketize turns a flat list into a bucket: the first half (rounded up)
// becomes what_worked, the rest what_to_improve, each capped at SideCap;
// key_changes is the first three items of the full list.
func Bucketize(items []string) Bucket {
	b := Empty()
	n := len(items)
	if n == 0 {
		return b
	}

	half := (n + 1) / 2
	b.WhatWorked = head(items[:half], SideCap)
	b.WhatToImprove = head(items[half:], SideCap)
	b.KeyChanges = head(items, 3)
	b.ImprovementActions = fallbackActions(b.WhatToImprove, b.KeyChanges)
	return b
}

// Summarize picks up to n display bullets. It prefers short_summary, then
// action labels, then the pooled and deduplicated lists.
func Summarize(b Bucket, n int) []string {
	if n <= 0 {
		n = SummaryBullets
	}

	if summary := Dedupe(b.ShortSummary); len(summary) > 0 {
		return head(summary, n)
	}

	if len(b.ImprovementActions) > 0 {
		labels := make([]string, 0, len(b.ImprovementActions))
		for _, a := range b.ImprovementActions {
			labels = append(labels, a.Label)
		}
		return head(Dedupe(labels), n)
	}

	pooled := make([]string, 0, len(b.WhatWorked)+len(b.WhatToImprove)+len(b.KeyChanges))
	pooled = append(pooled, b.WhatWorked...)
	pooled = append(pooled, b.WhatToImprove...)
	pooled = append(pooled, b.KeyChanges...)
	return head(Dedupe(pooled), n)
}

// Dedupe trims items, drops empties and keeps the first occurrence of each.
func Dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func fallbackActions(lists ...[]string) []Action {
	actions := make([]Action, 0, MaxActions)
	for _, list := range lists {
		for _, item := range list {
			label := strings.TrimSpace(item)
			if label == "" {
				continue
			}
			actions = append(actions, Action{Label: label, Confidence: DefaultConfidence})
			if len(actions) == MaxActions {
				return actions
			}
		}
	}
	return actions
}

func head(items []string, n int) []string {
	if len(items) < n {
		n = len(items)
	}
	out := make([]string, n)
	copy(out, items[:n])
	return out
}
