package store

import "context"

// Store keeps the local history of simulations started from this machine,
// cached aggregates and small settings.
type Store interface {
	// Simulation history
	SaveSimulation(ctx context.Context, sim *Simulation) error
	GetSimulation(ctx context.Context, id string) (*Simulation, error)
	ListSimulations(ctx context.Context) ([]*Simulation, error)
	RecordTransition(ctx context.Context, id string, tr Transition) error
	DeleteSimulation(ctx context.Context, id string) error

	// Cached get_simulation responses
	SaveSnapshot(ctx context.Context, simulationID string, payload []byte) error
	GetSnapshot(ctx context.Context, simulationID string) (*Snapshot, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}
