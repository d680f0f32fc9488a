package bookmark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LoadAbsentReturnsNone(t *testing.T) {
	s := NewMemoryStore()
	b, err := s.Load(context.Background(), "Security")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestMemoryStore_SaveThenLoadRoundtrips(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "Security", []byte("token-1")))

	b, err := s.Load(ctx, "Security")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, []byte("token-1"), b.Bytes)

	exists, err := s.Exists(ctx, "Security")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStore_SaveIsLastWriterWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "Security", []byte("first")))
	require.NoError(t, s.Save(ctx, "Security", []byte("second")))

	b, err := s.Load(ctx, "Security")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), b.Bytes)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "Security", []byte("x")))
	require.NoError(t, s.Delete(ctx, "Security"))

	exists, err := s.Exists(ctx, "Security")
	require.NoError(t, err)
	assert.False(t, exists)

	b, err := s.Load(ctx, "Security")
	require.NoError(t, err)
	assert.Nil(t, b)
}
