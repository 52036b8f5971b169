package trial

import (
	"context"
	"errors"
	"strconv"

	"github.com/socialgravity/socialgravity/internal/store"
)

// UsedKey is the settings key holding the free-simulation flag.
const UsedKey = "free_simulation_used"

var ErrTrialUsed = errors.New("the free simulation on this machine has been used; set a user id (SG_USER_ID) to run more")

// KV is the small persistent key-value capability the gate needs.
// *store.SQLiteStore implements it.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

var _ KV = (*store.SQLiteStore)(nil)

// Gate allows one anonymous simulation per machine. Runs that carry a
// user id are always allowed.
type Gate struct {
	kv KV
}

func New(kv KV) *Gate {
	return &Gate{kv: kv}
}

// Used reads the flag. An unset flag means unused.
func (g *Gate) Used(ctx context.Context) (bool, error) {
	v, err := g.kv.GetSetting(ctx, UsedKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	used, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return used, nil
}

func (g *Gate) MarkUsed(ctx context.Context) error {
	return g.kv.SetSetting(ctx, UsedKey, "true")
}

// Check returns ErrTrialUsed when an anonymous run is not allowed.
func (g *Gate) Check(ctx context.Context, userID string) error {
	if userID != "" {
		return nil
	}
	used, err := g.Used(ctx)
	if err != nil {
		return err
	}
	if used {
		return ErrTrialUsed
	}
	return nil
}
