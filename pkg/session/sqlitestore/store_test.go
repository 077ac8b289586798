package sqlitestore

import (
	"testing"
	"time"

	"github.com/harborlane/shopkit/pkg/session"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Storage {
	t.Helper()

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAndLoadOffline(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	sess := session.NewOffline("demo.harborshop.com", "tok", "read_orders,write_products")
	require.NoError(t, store.Store(ctx, sess))

	got, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, "tok", got.AccessToken)
	require.Nil(t, got.Expires)
	require.Nil(t, got.User)
}

func TestStoreAndLoadOnline(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	user := session.OnlineUser{
		ID:            42,
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Email:         "ada@example.com",
		EmailVerified: true,
		AccountOwner:  true,
		Locale:        "en-AU",
		Scope:         "read_orders",
	}
	sess := session.NewOnline("demo.harborshop.com", "tok", "read_orders", user, time.Hour)
	require.NoError(t, store.Store(ctx, sess))

	got, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, got.IsOnline)
	require.NotNil(t, got.Expires)
	require.WithinDuration(t, *sess.Expires, *got.Expires, time.Second)
	require.NotNil(t, got.User)
	require.Equal(t, user.ID, got.User.ID)
	require.Equal(t, user.Email, got.User.Email)
	require.True(t, got.User.EmailVerified)
	require.True(t, got.User.AccountOwner)
}

func TestStoreUpsertsByID(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	sess := session.NewOffline("demo.harborshop.com", "tok-v1", "read_orders")
	require.NoError(t, store.Store(ctx, sess))

	sess.AccessToken = "tok-v2"
	sess.Scope = "read_orders,write_products"
	require.NoError(t, store.Store(ctx, sess))

	got, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "tok-v2", got.AccessToken)
	require.Equal(t, "read_orders,write_products", got.Scope)

	found, err := store.FindByShop(ctx, "demo.harborshop.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestLoadMissing(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	_, err := store.Load(ctx, "nope")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestDeleteAndDeleteMany(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	offline := session.NewOffline("demo.harborshop.com", "tok", "read_orders")
	online := session.NewOnline("demo.harborshop.com", "tok", "read_orders", session.OnlineUser{ID: 1}, time.Hour)
	require.NoError(t, store.Store(ctx, offline))
	require.NoError(t, store.Store(ctx, online))

	require.NoError(t, store.Delete(ctx, offline.ID))
	_, err := store.Load(ctx, offline.ID)
	require.ErrorIs(t, err, session.ErrNotFound)

	// Deleting a missing ID is fine.
	require.NoError(t, store.Delete(ctx, offline.ID))

	require.NoError(t, store.DeleteMany(ctx, []string{online.ID, "ghost"}))
	found, err := store.FindByShop(ctx, "demo.harborshop.com")
	require.NoError(t, err)
	require.Empty(t, found)

	require.NoError(t, store.DeleteMany(ctx, nil))
}

func TestFindByShopIsolatesShops(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	require.NoError(t, store.Store(ctx, session.NewOffline("a.harborshop.com", "tok", "")))
	require.NoError(t, store.Store(ctx, session.NewOffline("b.harborshop.com", "tok", "")))

	found, err := store.FindByShop(ctx, "a.harborshop.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "a.harborshop.com", found[0].Shop)
}
