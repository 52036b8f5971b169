package store

import "time"

// Simulation is one locally tracked run. State mirrors the lifecycle
// state names (created, uploading, converting, analyzing, complete, error).
type Simulation struct {
	ID              string
	AudiencePrompt  string
	State           string
	BackendStatus   string
	VideoName       string
	DurationSeconds float64
	VideoID         string
	RawPath         string
	MP4Path         string
	VideoURL        string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transition is a partial update. Empty fields leave the stored value as is.
type Transition struct {
	State         string
	BackendStatus string
	VideoID       string
	RawPath       string
	MP4Path       string
	VideoURL      string
	ErrorMessage  string
}

// Snapshot is a cached raw aggregate.
type Snapshot struct {
	SimulationID string
	Payload      []byte
	FetchedAt    time.Time
}
