package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func labels(actions []Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Label)
	}
	return out
}

func TestNormalize_Absent(t *testing.T) {
	for _, in := range []string{``, `null`, `42`, `"plain sentence"`} {
		b := NormalizeJSON([]byte(in))
		assert.True(t, b.IsEmpty(), "input %q", in)
		assert.NotNil(t, b.WhatWorked)
		assert.NotNil(t, b.ImprovementActions)
	}

	b := Normalize(gjson.Get(`{"a":1}`, "missing"))
	assert.Equal(t, Empty(), b)
}

func TestNormalize_FlatArray(t *testing.T) {
	b := NormalizeJSON([]byte(`["x","y","z","w","v"]`))

	assert.Equal(t, []string{"x", "y", "z", "w", "v"}, b.KeyChanges)
	require.Len(t, b.ImprovementActions, 4)
	assert.Equal(t, []string{"x", "y", "z", "w"}, labels(b.ImprovementActions))
	for _, a := range b.ImprovementActions {
		assert.Equal(t, 0.7, a.Confidence)
		assert.Zero(t, a.TimestampSeconds)
	}
	assert.Empty(t, b.WhatWorked)
	assert.Empty(t, b.ShortSummary)
}

func TestNormalize_FlatArrayDropsFalsy(t *testing.T) {
	b := NormalizeJSON([]byte(`["a","",null,false,3,"b"]`))
	assert.Equal(t, []string{"a", "b"}, b.KeyChanges)
	assert.Equal(t, []string{"a", "b"}, labels(b.ImprovementActions))
}

func TestNormalize_StructuredActionsSorted(t *testing.T) {
	b := NormalizeJSON([]byte(`{
		"what_to_improve": ["a"],
		"improvement_actions": [
			{"label": "late", "timestamp_seconds": 5},
			{"label": "early", "timestamp_seconds": 1}
		]
	}`))

	assert.Equal(t, []string{"early", "late"}, labels(b.ImprovementActions))
	assert.Equal(t, []string{}, b.WhatWorked)
	assert.Equal(t, []string{"a"}, b.WhatToImprove)
	assert.Equal(t, 0.7, b.ImprovementActions[0].Confidence)
}

func TestNormalize_StructuredActionsCapped(t *testing.T) {
	b := NormalizeJSON([]byte(`{
		"improvement_actions": [
			{"label": "f", "timestamp_seconds": 6},
			{"label": "b", "timestamp_seconds": 2},
			{"label": "e", "timestamp_seconds": 5},
			{"label": "a", "timestamp_seconds": 1},
			{"label": "d", "timestamp_seconds": 4},
			{"label": "c", "timestamp_seconds": 3}
		]
	}`))

	require.Len(t, b.ImprovementActions, MaxActions)
	assert.Equal(t, []string{"a", "b", "c", "d"}, labels(b.ImprovementActions))
}

func TestNormalize_MalformedActionDropped(t *testing.T) {
	b := NormalizeJSON([]byte(`{
		"improvement_actions": [
			{"timestamp_seconds": 2, "confidence": 0.9},
			{"text": "tighten the hook", "timestamp_seconds": 3, "confidence": 0.4},
			{"action": "  ", "timestamp_seconds": 1},
			{"action": "add captions", "timestamp_seconds": "soon", "confidence": "high"},
			"  raise energy  ",
			17
		]
	}`))

	require.Len(t, b.ImprovementActions, 3)
	assert.Equal(t, []string{"add captions", "raise energy", "tighten the hook"}, labels(b.ImprovementActions))

	captions := b.ImprovementActions[0]
	assert.Zero(t, captions.TimestampSeconds)
	assert.Equal(t, 0.7, captions.Confidence)

	hook := b.ImprovementActions[2]
	assert.Equal(t, 3.0, hook.TimestampSeconds)
	assert.Equal(t, 0.4, hook.Confidence)
}

func TestNormalize_NonArrayFieldsTreatedAsAbsent(t *testing.T) {
	b := NormalizeJSON([]byte(`{"what_worked":"great hook","key_changes":{"a":1},"short_summary":["ok"]}`))
	assert.Empty(t, b.WhatWorked)
	assert.Empty(t, b.KeyChanges)
	assert.Equal(t, []string{"ok"}, b.ShortSummary)
	assert.Empty(t, b.ImprovementActions)
}

func TestNormalize_FallbackActionsFromImproveThenKeyChanges(t *testing.T) {
	b := NormalizeJSON([]byte(`{
		"what_to_improve": [" slower intro ", ""],
		"key_changes": ["add music", "cut to 20s", "brighter grade", "new thumbnail"]
	}`))

	assert.Equal(t, []string{"slower intro", "add music", "cut to 20s", "brighter grade"}, labels(b.ImprovementActions))
}

func TestNormalize_StableOnEqualTimestamps(t *testing.T) {
	b := NormalizeJSON([]byte(`{"improvement_actions":[
		{"label":"b","timestamp_seconds":2},
		{"label":"a1","timestamp_seconds":0},
		{"label":"c","timestamp_seconds":2},
		{"label":"a2","timestamp_seconds":0}
	]}`))
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, labels(b.ImprovementActions))
}

func TestNormalize_StringEncodedPayload(t *testing.T) {
	b := NormalizeJSON([]byte(`"{\"what_worked\":[\"strong open\"]}"`))
	assert.Equal(t, []string{"strong open"}, b.WhatWorked)
}

func TestBucketize(t *testing.T) {
	b := Bucketize([]string{"a", "b", "c", "d", "e", "f", "g", "h"})

	assert.Equal(t, []string{"a", "b", "c"}, b.WhatWorked)
	assert.Equal(t, []string{"e", "f", "g"}, b.WhatToImprove)
	assert.Equal(t, []string{"a", "b", "c"}, b.KeyChanges)
	assert.Equal(t, []string{"e", "f", "g", "a"}, labels(b.ImprovementActions))

	odd := Bucketize([]string{"one", "two", "three"})
	assert.Equal(t, []string{"one", "two"}, odd.WhatWorked)
	assert.Equal(t, []string{"three"}, odd.WhatToImprove)

	assert.True(t, Bucketize(nil).IsEmpty())
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		bucket Bucket
		want   []string
	}{
		{
			name:   "prefers short summary",
			bucket: Bucket{ShortSummary: []string{"s1", "s2", "s3", "s4"}, ImprovementActions: []Action{{Label: "x"}}},
			want:   []string{"s1", "s2", "s3"},
		},
		{
			name:   "then action labels",
			bucket: Bucket{ImprovementActions: []Action{{Label: "x"}, {Label: "y"}}, WhatWorked: []string{"w"}},
			want:   []string{"x", "y"},
		},
		{
			name:   "then pooled lists deduplicated",
			bucket: Bucket{WhatWorked: []string{"a"}, WhatToImprove: []string{"a", "b"}, KeyChanges: []string{"c", "d"}},
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "empty",
			bucket: Empty(),
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.bucket, 3))
		})
	}
}
