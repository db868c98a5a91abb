package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/terminal/internal/terminal/domain"
)

func TestStore_SaveLoadDelete(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "terminal.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	var missing domain.NetworkStatus
	found, err := s.Load(ctx, "network_status", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "network_status", domain.NetworkStatus{IsConnected: true}))

	var ns domain.NetworkStatus
	found, err = s.Load(ctx, "network_status", &ns)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, ns.IsConnected)

	require.NoError(t, s.Delete(ctx, "network_status"))
	found, err = s.Load(ctx, "network_status", &ns)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terminal.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "pending_transactions", []domain.PendingTransaction{{LocalID: "local_1", Amount: 100}}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	var queue []domain.PendingTransaction
	found, err := reopened.Load(ctx, "pending_transactions", &queue)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, queue, 1)
	assert.Equal(t, "local_1", queue[0].LocalID)
}
