package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"auctions/internal/biddingerrors"
	"auctions/internal/repository"
	"auctions/internal/repository/repotest"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "auctions.db"), 5*time.Second)
	require.NoError(t, err)
	return store
}

func TestStore_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.AuctionDB {
		return newTestStore(t)
	})
}

func TestStore_InMemory(t *testing.T) {
	store, err := New(":memory:", time.Second)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateListing(ctx, repotest.NewListing("listing1", "owner", "3.00", time.Now())))
	got, err := store.GetListing(ctx, "listing1")
	require.NoError(t, err)
	require.Equal(t, "3", got.StartingBid.String())
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auctions.db")
	ctx := context.Background()

	store, err := New(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.CreateListing(ctx, repotest.NewListing("listing1", "owner", "3.00", time.Now())))
	require.NoError(t, store.WithListingTx(ctx, "listing1", func(tx repository.ListingTx) error {
		return tx.SaveBid(repotest.NewBid("bid1", "listing1", "bidder1", "4.10", time.Now()))
	}))
	require.NoError(t, store.Close())

	store, err = New(path, time.Second)
	require.NoError(t, err)
	defer store.Close()

	bids, err := store.GetBidsByListing(ctx, "listing1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, "4.1", bids[0].Amount.String())
}

func TestStore_LockWaitHonoursContext(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateListing(ctx, repotest.NewListing("listing1", "owner", "1.00", time.Now())))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithListingTx(ctx, "listing1", func(tx repository.ListingTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := store.WithListingTx(shortCtx, "listing1", func(tx repository.ListingTx) error {
		return nil
	})
	require.ErrorIs(t, err, biddingerrors.ErrConflict)

	close(release)
	require.NoError(t, <-done)
}

func TestPrefixed(t *testing.T) {
	require.Equal(t, "l.a, l.b, l.c", prefixed("l", "a, b, c"))
}
