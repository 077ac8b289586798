//go:build integration

package redistore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/harborlane/shopkit/pkg/session"
)

// startRedis spins up a disposable Redis container for the test run.
func startRedis(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	store, err := Connect(ctx, fmt.Sprintf("redis://%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := startRedis(t)

	sess := session.NewOnline("demo.harborshop.com", "tok", "read_orders",
		session.OnlineUser{ID: 42, Email: "ada@example.com"}, time.Hour)
	require.NoError(t, store.Store(ctx, sess))

	got, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "tok", got.AccessToken)
	require.NotNil(t, got.User)
	require.Equal(t, int64(42), got.User.ID)

	found, err := store.FindByShop(ctx, "demo.harborshop.com")
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Load(ctx, sess.ID)
	require.ErrorIs(t, err, session.ErrNotFound)

	found, err = store.FindByShop(ctx, "demo.harborshop.com")
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestRedisStorageDeleteMany(t *testing.T) {
	ctx := context.Background()
	store := startRedis(t)

	a := session.NewOffline("a.harborshop.com", "tok", "")
	b := session.NewOffline("b.harborshop.com", "tok", "")
	require.NoError(t, store.Store(ctx, a))
	require.NoError(t, store.Store(ctx, b))

	require.NoError(t, store.DeleteMany(ctx, []string{a.ID, b.ID, "ghost"}))

	_, err := store.Load(ctx, a.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = store.Load(ctx, b.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
}
