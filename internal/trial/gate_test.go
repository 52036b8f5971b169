package trial_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialgravity/socialgravity/internal/store"
	"github.com/socialgravity/socialgravity/internal/trial"
)

type memKV struct {
	values map[string]string
	err    error
}

func (m *memKV) GetSetting(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memKV) SetSetting(_ context.Context, key, value string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func TestGate_AnonymousOnlyOnce(t *testing.T) {
	ctx := context.Background()
	g := trial.New(&memKV{})

	require.NoError(t, g.Check(ctx, ""))
	require.NoError(t, g.MarkUsed(ctx))

	assert.ErrorIs(t, g.Check(ctx, ""), trial.ErrTrialUsed)
	assert.NoError(t, g.Check(ctx, "user-42"))
}

func TestGate_UnparseableFlagCountsAsUnused(t *testing.T) {
	g := trial.New(&memKV{values: map[string]string{trial.UsedKey: "maybe"}})
	used, err := g.Used(context.Background())
	require.NoError(t, err)
	assert.False(t, used)
}

func TestGate_StorageErrorPropagates(t *testing.T) {
	boom := errors.New("disk gone")
	g := trial.New(&memKV{err: boom})
	assert.ErrorIs(t, g.Check(context.Background(), ""), boom)
}

func TestGate_OverSQLiteSettings(t *testing.T) {
	s, err := store.Open(t.TempDir() + "/trial.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	g := trial.New(s)
	require.NoError(t, g.MarkUsed(ctx))

	used, err := trial.New(s).Used(ctx)
	require.NoError(t, err)
	assert.True(t, used)
}
