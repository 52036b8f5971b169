package insights

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

var labelKeys = []string{"label", "text", "action"}

// Normalize reduces any insight payload to a Bucket. Absent or null input
// yields an empty bucket, a flat array becomes key_changes plus synthetic
// actions, and an object contributes whichever known fields are arrays.
// A JSON-encoded string wrapping either shape is unwrapped first.
func Normalize(raw gjson.Result) Bucket {
	switch {
	case !raw.Exists() || raw.Type == gjson.Null:
		return Empty()
	case raw.IsArray():
		return fromList(raw)
	case raw.IsObject():
		return fromObject(raw)
	case raw.Type == gjson.String:
		inner := strings.TrimSpace(raw.String())
		if (strings.HasPrefix(inner, "[") || strings.HasPrefix(inner, "{")) && gjson.Valid(inner) {
			return Normalize(gjson.Parse(inner))
		}
	}
	return Empty()
}

// NormalizeJSON is Normalize for raw bytes. Invalid JSON is treated as absent.
func NormalizeJSON(data []byte) Bucket {
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return Empty()
	}
	return Normalize(gjson.ParseBytes(data))
}

func fromList(raw gjson.Result) Bucket {
	b := Empty()
	b.KeyChanges = stringItems(raw)
	for _, item := range head(b.KeyChanges, MaxActions) {
		b.ImprovementActions = append(b.ImprovementActions, Action{Label: item, Confidence: DefaultConfidence})
	}
	sortActions(b.ImprovementActions)
	return b
}

func fromObject(raw gjson.Result) Bucket {
	b := Empty()
	b.ShortSummary = arrayField(raw, "short_summary")
	b.WhatWorked = arrayField(raw, "what_worked")
	b.WhatToImprove = arrayField(raw, "what_to_improve")
	b.KeyChanges = arrayField(raw, "key_changes")

	if actions := raw.Get("improvement_actions"); actions.IsArray() {
		for _, item := range actions.Array() {
			if a, ok := parseAction(item); ok {
				b.ImprovementActions = append(b.ImprovementActions, a)
			}
		}
	}
	if len(b.ImprovementActions) == 0 {
		b.ImprovementActions = fallbackActions(b.WhatToImprove, b.KeyChanges)
	}
	// Earliest actions win the cap.
	sortActions(b.ImprovementActions)
	if len(b.ImprovementActions) > MaxActions {
		b.ImprovementActions = b.ImprovementActions[:MaxActions]
	}
	return b
}

func parseAction(item gjson.Result) (Action, bool) {
	if item.Type == gjson.String {
		label := strings.TrimSpace(item.String())
		return Action{Label: label, Confidence: DefaultConfidence}, label != ""
	}
	if !item.IsObject() {
		return Action{}, false
	}

	var label string
	for _, key := range labelKeys {
		if v := item.Get(key); v.Type == gjson.String {
			if label = strings.TrimSpace(v.String()); label != "" {
				break
			}
		}
	}
	if label == "" {
		return Action{}, false
	}

	a := Action{Label: label, Confidence: DefaultConfidence}
	if ts := item.Get("timestamp_seconds"); ts.Type == gjson.Number {
		a.TimestampSeconds = ts.Float()
	} else if ts := item.Get("timestamp"); ts.Type == gjson.Number {
		a.TimestampSeconds = ts.Float()
	}
	if c := item.Get("confidence"); c.Type == gjson.Number {
		a.Confidence = c.Float()
	}
	return a, true
}

func arrayField(raw gjson.Result, key string) []string {
	v := raw.Get(key)
	if !v.IsArray() {
		return []string{}
	}
	return stringItems(v)
}

// stringItems keeps the non-empty string elements of an array in order.
func stringItems(arr gjson.Result) []string {
	out := []string{}
	for _, item := range arr.Array() {
		if item.Type == gjson.String && item.String() != "" {
			out = append(out, item.String())
		}
	}
	return out
}

func sortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].TimestampSeconds < actions[j].TimestampSeconds
	})
}
