package usage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingStore errors on every call, standing in for an unreachable remote.
type failingStore struct {
	gets    int
	updates int
}

func (s *failingStore) Get(ctx context.Context, userID string) (Record, error) {
	s.gets++
	return Record{}, errors.New("connection refused")
}

func (s *failingStore) Update(ctx context.Context, userID string, mutate func(*Record)) (Record, error) {
	s.updates++
	return Record{}, errors.New("connection refused")
}

func TestFallbackStoreDegradesSilently(t *testing.T) {
	primary := &failingStore{}
	local := NewLocalStore(filepath.Join(t.TempDir(), "usage.json"), zap.NewNop())
	store := NewFallbackStore(primary, local, zap.NewNop())
	ctx := context.Background()

	rec, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.GeneratedCount)

	rec, err = store.Update(ctx, "u1", func(r *Record) { r.GeneratedCount++ })
	require.NoError(t, err)
	assert.Equal(t, 1, rec.GeneratedCount)

	// The primary was tried on every call, not cached out.
	assert.Equal(t, 1, primary.gets)
	assert.Equal(t, 1, primary.updates)

	rec, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.GeneratedCount)
	assert.Equal(t, 2, primary.gets)
}

func TestFallbackStoreNilPrimary(t *testing.T) {
	local := NewLocalStore(filepath.Join(t.TempDir(), "usage.json"), zap.NewNop())
	store := NewFallbackStore(nil, local, zap.NewNop())

	rec, err := store.Update(context.Background(), "u1", func(r *Record) { r.GeneratedCount++ })
	require.NoError(t, err)
	assert.Equal(t, 1, rec.GeneratedCount)
}
