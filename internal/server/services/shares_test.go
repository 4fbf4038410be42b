package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

func TestShare_Flow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	carol := e.register(t, "carol")

	f := e.upload(t, alice, "report.pdf", "pdf", "secret123")

	share, err := e.shares.Share(ctx, alice, f.AccessToken, "bob")
	require.NoError(t, err)
	assert.Equal(t, f.ID, share.FileID)
	assert.Equal(t, bob.UserID, share.SharedWithID)
	assert.Equal(t, alice.UserID, share.SharedByID)

	_, err = e.shares.Share(ctx, alice, f.AccessToken, "bob")
	assert.ErrorIs(t, err, common.ErrAlreadyShared)

	_, err = e.shares.Share(ctx, alice, f.AccessToken, "carol")
	require.NoError(t, err)

	list, err := e.shares.ListSharedWith(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.AccessToken, list[0].AccessToken)
	assert.Equal(t, "report.pdf", list[0].Filename)
	assert.Equal(t, "alice", list[0].OwnerName)

	recipients, err := e.shares.ListRecipients(ctx, alice, f.AccessToken)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "bob", recipients[0].UserName)
	assert.Equal(t, "carol", recipients[1].UserName)

	_, err = e.shares.ListRecipients(ctx, bob, f.AccessToken)
	assert.ErrorIs(t, err, common.ErrForbidden)

	// only the sharer may revoke
	assert.ErrorIs(t, e.shares.Unshare(ctx, carol, f.AccessToken, "bob"), common.ErrForbidden)
	require.NoError(t, e.shares.Unshare(ctx, alice, f.AccessToken, "bob"))
	assert.ErrorIs(t, e.shares.Unshare(ctx, alice, f.AccessToken, "bob"), common.ErrShareNotFound)
	assert.ErrorIs(t, e.shares.Unshare(ctx, alice, f.AccessToken, "nobody"), common.ErrShareNotFound)

	list, err = e.shares.ListSharedWith(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := e.shares.UnshareAll(ctx, alice, f.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, e.store.ShareCount(f.ID))
}

func TestShare_Rules(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	f := e.upload(t, alice, "a.txt", "a", "")
	anon := e.upload(t, nil, "b.txt", "b", "")

	_, err := e.shares.Share(ctx, nil, f.AccessToken, "bob")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	_, err = e.shares.Share(ctx, bob, f.AccessToken, "alice")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = e.shares.Share(ctx, alice, anon.AccessToken, "bob")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = e.shares.Share(ctx, alice, f.AccessToken, "alice")
	assert.ErrorIs(t, err, common.ErrInvalidTarget)

	_, err = e.shares.Share(ctx, alice, f.AccessToken, "ghost")
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = e.shares.Share(ctx, alice, "missing", "bob")
	assert.ErrorIs(t, err, common.ErrFileNotFound)

	require.NoError(t, e.files.Bin(ctx, alice, f.AccessToken))
	_, err = e.shares.Share(ctx, alice, f.AccessToken, "bob")
	assert.ErrorIs(t, err, common.ErrFileBinned)

	_, err = e.shares.ListSharedWith(ctx, nil)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	_, err = e.shares.UnshareAll(ctx, bob, f.AccessToken)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestShare_PurgeRemovesShares(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	f := e.upload(t, alice, "a.txt", "a", "")
	_, err := e.shares.Share(ctx, alice, f.AccessToken, "bob")
	require.NoError(t, err)

	require.NoError(t, e.files.Purge(ctx, alice, f.AccessToken))

	list, err := e.shares.ListSharedWith(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}
