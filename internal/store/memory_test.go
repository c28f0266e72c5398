package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tonewheel/internal/session"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := session.New(session.Config{})

	_, err := st.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Save(ctx, s))
	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, st.Len())

	require.NoError(t, st.Delete(ctx, s.ID))
	require.NoError(t, st.Delete(ctx, s.ID))
	assert.Equal(t, 0, st.Len())
}

func TestMemoryStoreIdle(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore().(*memory)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	st.now = func() time.Time { return clock }

	a := session.New(session.Config{})
	b := session.New(session.Config{})
	require.NoError(t, st.Save(ctx, a))
	clock = t0.Add(10 * time.Minute)
	require.NoError(t, st.Save(ctx, b))

	idle, err := st.Idle(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []*session.Session{a}, idle)

	// A lookup counts as activity.
	clock = t0.Add(20 * time.Minute)
	_, err = st.Get(ctx, a.ID)
	require.NoError(t, err)
	idle, err = st.Idle(ctx, t0.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []*session.Session{b}, idle)

	require.NoError(t, st.Delete(ctx, b.ID))
	idle, err = st.Idle(ctx, t0.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, idle)
}
