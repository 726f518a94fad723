package storage

import (
	"context"
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObjectStorage(t *testing.T) {
	s := NewMemoryObjectStorage()
	ctx := context.Background()

	data := []byte("manifest")
	require.NoError(t, s.Put(ctx, "o/b/manifest.xml", data, "application/xml"))
	data[0] = 'X' // caller mutation does not leak in

	got, err := s.Get(ctx, "o/b/manifest.xml")
	require.NoError(t, err)
	assert.Equal(t, "manifest", string(got))
	assert.Equal(t, "application/xml", s.ContentType("o/b/manifest.xml"))

	ok, err := s.Exists(ctx, "o/b/manifest.xml")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Get(ctx, "o/b/missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.Error(t, s.Put(ctx, "", data, ""))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "o/b/manifest.xml"))
	require.NoError(t, s.Delete(ctx, "o/b/manifest.xml"))
	assert.Equal(t, 0, s.Len())
}
