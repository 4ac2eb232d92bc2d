// Package repotest holds behaviour checks every AuctionDB implementation must pass.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auctions/internal/biddingerrors"
	model "auctions/internal/models"
	"auctions/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. The store is closed by the suite.
type Factory func(t *testing.T) repository.AuctionDB

// NewListing builds an open listing with a fixed creation time offset.
func NewListing(id, owner string, startingBid string, createdAt time.Time) model.Listing {
	return model.Listing{
		ListingID:   id,
		OwnerID:     owner,
		Title:       "title " + id,
		Description: id + " description",
		StartingBid: decimal.RequireFromString(startingBid),
		Status:      model.ListingOpen,
		CreatedAt:   createdAt.UTC().Truncate(time.Millisecond),
	}
}

// NewBid builds a bid row.
func NewBid(id, listingID, bidderID, amount string, at time.Time) model.Bid {
	at = at.UTC().Truncate(time.Millisecond)
	return model.Bid{
		BidID:     id,
		ListingID: listingID,
		BidderID:  bidderID,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	open := func(t *testing.T) repository.AuctionDB {
		store := newStore(t)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("listings", func(t *testing.T) { testListings(t, open(t)) })
	t.Run("listing_tx_commit", func(t *testing.T) { testTxCommit(t, open(t)) })
	t.Run("listing_tx_rollback", func(t *testing.T) { testTxRollback(t, open(t)) })
	t.Run("listing_tx_missing_listing", func(t *testing.T) { testTxMissingListing(t, open(t)) })
	t.Run("one_bid_row_per_bidder", func(t *testing.T) { testOneRowPerBidder(t, open(t)) })
	t.Run("concurrent_transactions", func(t *testing.T) { testConcurrentTx(t, open(t)) })
	t.Run("watchlist", func(t *testing.T) { testWatchlist(t, open(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
}

func testListings(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	base := time.Now()

	l1 := NewListing("listing-1", "owner-1", "10.00", base)
	l2 := NewListing("listing-2", "owner-1", "5.50", base.Add(time.Second))
	l3 := NewListing("listing-3", "owner-2", "1.00", base.Add(2*time.Second))
	l3.Status = model.ListingClosed
	closedAt := base.Add(3 * time.Second).UTC().Truncate(time.Millisecond)
	l3.ClosedAt = &closedAt

	for _, l := range []model.Listing{l1, l2, l3} {
		require.NoError(t, store.CreateListing(ctx, l))
	}

	got, err := store.GetListing(ctx, "listing-2")
	require.NoError(t, err)
	require.Equal(t, l2.ListingID, got.ListingID)
	require.Equal(t, l2.OwnerID, got.OwnerID)
	require.Equal(t, l2.Title, got.Title)
	require.Equal(t, l2.Description, got.Description)
	require.True(t, l2.StartingBid.Equal(got.StartingBid), "starting bid %s != %s", l2.StartingBid, got.StartingBid)
	require.Equal(t, model.ListingOpen, got.Status)
	require.False(t, got.HasHighestBid())
	require.True(t, l2.CreatedAt.Equal(got.CreatedAt))
	require.Nil(t, got.ClosedAt)

	_, err = store.GetListing(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)

	all, err := store.ListListings(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"listing-3", "listing-2", "listing-1"}, listingIDs(all))

	openListings, err := store.ListListings(ctx, model.ListingOpen)
	require.NoError(t, err)
	require.Equal(t, []string{"listing-2", "listing-1"}, listingIDs(openListings))

	closed, err := store.ListListings(ctx, model.ListingClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].ClosedAt)
	require.True(t, closedAt.Equal(*closed[0].ClosedAt))

	bids, err := store.GetBidsByListing(ctx, "listing-1")
	require.NoError(t, err)
	require.Empty(t, bids)

	_, err = store.GetBidsByListing(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
}

func testTxCommit(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateListing(ctx, NewListing("listing-1", "owner", "10.00", now)))

	bid := NewBid("bid-1", "listing-1", "bidder-1", "12.50", now)
	err := store.WithListingTx(ctx, "listing-1", func(tx repository.ListingTx) error {
		listing, err := tx.GetListing()
		if err != nil {
			return err
		}
		if _, found, err := tx.GetBidByBidder("bidder-1"); err != nil || found {
			return fmt.Errorf("unexpected standing bid: found=%v err=%v", found, err)
		}
		if err := tx.SaveBid(bid); err != nil {
			return err
		}

		// reads inside the transaction observe its own writes
		staged, found, err := tx.GetBidByBidder("bidder-1")
		if err != nil || !found || staged.BidID != "bid-1" {
			return fmt.Errorf("staged bid not visible: found=%v err=%v", found, err)
		}
		byID, found, err := tx.GetBid("bid-1")
		if err != nil || !found || !byID.Amount.Equal(bid.Amount) {
			return fmt.Errorf("staged bid not visible by id: found=%v err=%v", found, err)
		}
		all, err := tx.GetBidsByListing()
		if err != nil || len(all) != 1 {
			return fmt.Errorf("staged bids not listed: %d err=%v", len(all), err)
		}

		listing.HighestBidID = bid.BidID
		return tx.SaveListing(listing)
	})
	require.NoError(t, err)

	listing, err := store.GetListing(ctx, "listing-1")
	require.NoError(t, err)
	require.Equal(t, "bid-1", listing.HighestBidID)

	stored, err := store.GetBid(ctx, "bid-1")
	require.NoError(t, err)
	require.Equal(t, "listing-1", stored.ListingID)
	require.Equal(t, "bidder-1", stored.BidderID)
	require.True(t, stored.Amount.Equal(decimal.RequireFromString("12.5")))

	_, err = store.GetBid(ctx, "bid-missing")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	bids, err := store.GetBidsByListing(ctx, "listing-1")
	require.NoError(t, err)
	require.Len(t, bids, 1)

	listings, err := store.GetListingsByBidder(ctx, "bidder-1")
	require.NoError(t, err)
	require.Equal(t, []string{"listing-1"}, listingIDs(listings))

	none, err := store.GetListingsByBidder(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, none)
}

func testTxRollback(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateListing(ctx, NewListing("listing-1", "owner", "10.00", now)))

	errAbort := errors.New("abort")
	err := store.WithListingTx(ctx, "listing-1", func(tx repository.ListingTx) error {
		if err := tx.SaveBid(NewBid("bid-1", "listing-1", "bidder-1", "20.00", now)); err != nil {
			return err
		}
		listing, err := tx.GetListing()
		if err != nil {
			return err
		}
		listing.HighestBidID = "bid-1"
		listing.Status = model.ListingClosed
		if err := tx.SaveListing(listing); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	listing, err := store.GetListing(ctx, "listing-1")
	require.NoError(t, err)
	require.False(t, listing.HasHighestBid())
	require.Equal(t, model.ListingOpen, listing.Status)

	bids, err := store.GetBidsByListing(ctx, "listing-1")
	require.NoError(t, err)
	require.Empty(t, bids)
}

func testTxMissingListing(t *testing.T, store repository.AuctionDB) {
	called := false
	err := store.WithListingTx(context.Background(), "missing", func(tx repository.ListingTx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
	require.False(t, called)
}

func testOneRowPerBidder(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateListing(ctx, NewListing("listing-1", "owner", "1.00", now)))

	save := func(bid model.Bid) error {
		return store.WithListingTx(ctx, "listing-1", func(tx repository.ListingTx) error {
			return tx.SaveBid(bid)
		})
	}

	first := NewBid("bid-1", "listing-1", "bidder-1", "5.00", now)
	require.NoError(t, save(first))

	updated := first
	updated.Amount = decimal.RequireFromString("7.25")
	updated.UpdatedAt = now.Add(time.Second).UTC().Truncate(time.Millisecond)
	require.NoError(t, save(updated))

	// a second row for the same bidder violates the (listing, bidder) key
	require.Error(t, save(NewBid("bid-2", "listing-1", "bidder-1", "9.00", now)))

	bids, err := store.GetBidsByListing(ctx, "listing-1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, "bid-1", bids[0].BidID)
	require.True(t, bids[0].Amount.Equal(decimal.RequireFromString("7.25")))
	require.True(t, bids[0].CreatedAt.Equal(first.CreatedAt))
}

// testConcurrentTx has every worker read the current maximum and write a bid
// one unit higher. Serialized transactions leave amounts 1..N with no gaps.
func testConcurrentTx(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	require.NoError(t, store.CreateListing(ctx, NewListing("listing-1", "owner", "1.00", time.Now())))

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bidderID := fmt.Sprintf("bidder-%d", i)
			for attempt := 0; attempt < 50; attempt++ {
				err := store.WithListingTx(ctx, "listing-1", func(tx repository.ListingTx) error {
					bids, err := tx.GetBidsByListing()
					if err != nil {
						return err
					}
					next := decimal.NewFromInt(1)
					if len(bids) > 0 {
						next = bids[0].Amount.Add(decimal.NewFromInt(1))
					}
					bid := NewBid(fmt.Sprintf("bid-%d", i), "listing-1", bidderID, next.String(), time.Now())
					if err := tx.SaveBid(bid); err != nil {
						return err
					}
					listing, err := tx.GetListing()
					if err != nil {
						return err
					}
					listing.HighestBidID = bid.BidID
					return tx.SaveListing(listing)
				})
				if errors.Is(err, biddingerrors.ErrConflict) {
					time.Sleep(time.Millisecond)
					continue
				}
				errs <- err
				return
			}
			errs <- fmt.Errorf("%s: gave up after repeated conflicts", bidderID)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bids, err := store.GetBidsByListing(ctx, "listing-1")
	require.NoError(t, err)
	require.Len(t, bids, workers)
	for i, b := range bids {
		require.True(t, b.Amount.Equal(decimal.NewFromInt(int64(workers-i))), "bid %d has amount %s", i, b.Amount)
	}

	listing, err := store.GetListing(ctx, "listing-1")
	require.NoError(t, err)
	require.Equal(t, bids[0].BidID, listing.HighestBidID)
}

func testWatchlist(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateListing(ctx, NewListing("listing-1", "owner", "1.00", now)))
	require.NoError(t, store.CreateListing(ctx, NewListing("listing-2", "owner", "1.00", now.Add(time.Second))))

	require.NoError(t, store.AddToWatchlist(ctx, "user-1", "listing-1"))
	require.NoError(t, store.AddToWatchlist(ctx, "user-1", "listing-1"))
	require.NoError(t, store.AddToWatchlist(ctx, "user-1", "listing-2"))
	require.ErrorIs(t, store.AddToWatchlist(ctx, "user-1", "missing"), biddingerrors.ErrListingNotFound)

	watched, err := store.GetWatchlist(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"listing-2", "listing-1"}, listingIDs(watched))

	require.NoError(t, store.RemoveFromWatchlist(ctx, "user-1", "listing-2"))
	require.NoError(t, store.RemoveFromWatchlist(ctx, "user-1", "listing-2"))
	require.NoError(t, store.RemoveFromWatchlist(ctx, "user-2", "listing-1"))

	watched, err = store.GetWatchlist(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"listing-1"}, listingIDs(watched))

	empty, err := store.GetWatchlist(ctx, "user-2")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testUsers(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	user := model.User{
		UserID:       "user-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.CreateUser(ctx, user))

	dup := user
	dup.UserID = "user-2"
	dup.Username = "Alice"
	require.ErrorIs(t, store.CreateUser(ctx, dup), biddingerrors.ErrUsernameTaken)

	got, err := store.GetUserByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, "hash", got.PasswordHash)

	_, err = store.GetUserByUsername(ctx, "bob")
	require.ErrorIs(t, err, biddingerrors.ErrUserNotFound)
}

func listingIDs(listings []model.Listing) []string {
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ListingID)
	}
	return ids
}
