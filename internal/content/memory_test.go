package content

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"custodia/pkg/platform/sentinel"
)

func TestPutDerivesStableCID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first, err := store.Put(ctx, []byte("report bytes"), "report.pdf", "application/pdf")
	require.NoError(t, err)
	second, err := store.Put(ctx, []byte("report bytes"), "other-name.pdf", "text/plain")
	require.NoError(t, err)

	// Content-addressed: the identifier depends only on the bytes.
	require.Equal(t, first, second)
	require.True(t, strings.HasPrefix(first, "bafk"), "expected a CIDv1 raw identifier, got %s", first)

	different, err := store.Put(ctx, []byte("different bytes"), "report.pdf", "application/pdf")
	require.NoError(t, err)
	require.NotEqual(t, first, different)
}

func TestGetRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("payload"), "p.bin", "application/octet-stream")
	require.NoError(t, err)

	data, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestGetUnknownContent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.Get(ctx, "not-a-cid")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// Syntactically valid CID that was never stored.
	id, err := store.Put(ctx, []byte("here"), "h", "")
	require.NoError(t, err)
	missing := NewMemory()
	_, err = missing.Get(ctx, id)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
