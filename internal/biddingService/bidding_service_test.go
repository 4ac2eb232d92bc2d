package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"auctions/internal/biddingerrors"
	"auctions/internal/models"
	"auctions/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordedBid struct {
	outcome string
	reason  models.RejectReason
}

// fakeRecorder keeps every observation for assertions
type fakeRecorder struct {
	mu     sync.Mutex
	bids   []recordedBid
	closes []string
}

func (r *fakeRecorder) RecordBid(outcome string, reason models.RejectReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids = append(r.bids, recordedBid{outcome: outcome, reason: reason})
}

func (r *fakeRecorder) RecordClose(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, result)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AuctionEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event models.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Events() []models.AuctionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.AuctionEvent(nil), p.events...)
}

// newMemoryService returns a service over a memory repo seeded with one open listing
func newMemoryService(t *testing.T, startingBid string, opts ...Option) (*BiddingService, *repository.MemoryRepo) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	repo.AddListing(models.Listing{
		ListingID:   "listing1",
		OwnerID:     "owner",
		Title:       "Vintage camera",
		StartingBid: d(startingBid),
		Status:      models.ListingOpen,
		CreatedAt:   time.Now().UTC(),
	})
	return NewBiddingService(repo, opts...), repo
}

func submit(t *testing.T, s *BiddingService, bidder, amount string) models.BidOutcome {
	t.Helper()
	outcome, err := s.SubmitBid(context.Background(), "listing1", bidder, d(amount))
	require.NoError(t, err)
	return outcome
}

func TestBiddingService_SubmitBid_Scenarios(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	service, repo := newMemoryService(t, "10.00", WithPublisher(publisher))
	ctx := context.Background()

	// below the starting bid
	outcome := submit(t, service, "A", "5.00")
	require.Equal(t, models.RejectBidTooLow, outcome.Reason)
	listing, err := repo.GetListing(ctx, "listing1")
	require.NoError(t, err)
	require.False(t, listing.HasHighestBid())
	bids, err := repo.GetBidsByListing(ctx, "listing1")
	require.NoError(t, err)
	require.Empty(t, bids)

	// equal to the starting bid
	outcome = submit(t, service, "A", "10.00")
	require.True(t, outcome.IsAccepted())
	require.True(t, outcome.HighestAmount.Equal(d("10.00")))
	highest, err := service.GetHighestBid(ctx, "listing1")
	require.NoError(t, err)
	require.Equal(t, "A", highest.BidderID)
	require.True(t, highest.Amount.Equal(d("10.00")))

	// a tie does not displace the incumbent; a higher bid does
	outcome = submit(t, service, "B", "10.00")
	require.Equal(t, models.RejectBidNotHigher, outcome.Reason)
	require.True(t, outcome.HighestAmount.Equal(d("10.00")))
	outcome = submit(t, service, "B", "12.00")
	require.True(t, outcome.IsAccepted())
	highest, err = service.GetHighestBid(ctx, "listing1")
	require.NoError(t, err)
	require.Equal(t, "B", highest.BidderID)

	// owner closes; B wins and the listing refuses further bids
	closeOutcome, err := service.CloseListing(ctx, "listing1", "owner")
	require.NoError(t, err)
	require.True(t, closeOutcome.HasWinner())
	require.Equal(t, "B", *closeOutcome.Winner)
	require.True(t, closeOutcome.FinalAmount.Equal(d("12.00")))

	outcome = submit(t, service, "A", "100.00")
	require.Equal(t, models.RejectListingClosed, outcome.Reason)

	listing, err = repo.GetListing(ctx, "listing1")
	require.NoError(t, err)
	require.Equal(t, models.ListingClosed, listing.Status)
	require.NotNil(t, listing.ClosedAt)

	events := publisher.Events()
	require.Len(t, events, 3)
	require.Equal(t, models.EventBidAccepted, events[0].Type)
	require.Nil(t, events[0].PreviousAmount)
	require.Equal(t, models.EventBidAccepted, events[1].Type)
	require.Equal(t, "B", events[1].BidderID)
	require.True(t, events[1].PreviousAmount.Equal(d("10.00")))
	require.Equal(t, models.EventListingClosed, events[2].Type)
	require.Equal(t, "B", events[2].WinnerID)
	for _, e := range events {
		_, err := uuid.Parse(e.EventID)
		require.NoError(t, err)
	}
}

func TestBiddingService_SubmitBid_StandingBid(t *testing.T) {
	t.Parallel()

	service, repo := newMemoryService(t, "1.00")
	ctx := context.Background()

	first := submit(t, service, "A", "5.00")
	require.True(t, first.IsAccepted())
	require.True(t, submit(t, service, "B", "6.00").IsAccepted())

	// A retakes the lead by updating the same row
	raised := submit(t, service, "A", "7.00")
	require.True(t, raised.IsAccepted())
	require.Equal(t, first.Bid.BidID, raised.Bid.BidID)
	require.True(t, raised.Bid.CreatedAt.Equal(first.Bid.CreatedAt))

	// incumbent repeating its own amount is accepted without a write
	again := submit(t, service, "A", "7.00")
	require.True(t, again.IsAccepted())
	require.Equal(t, raised.Bid.BidID, again.Bid.BidID)
	require.True(t, again.Bid.UpdatedAt.Equal(raised.Bid.UpdatedAt))

	// regression below the bidder's own standing amount
	require.Equal(t, models.RejectBidTooLow, submit(t, service, "A", "6.50").Reason)
	require.Equal(t, models.RejectBidTooLow, submit(t, service, "B", "5.50").Reason)

	bids, err := repo.GetBidsByListing(ctx, "listing1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, "A", bids[0].BidderID)
	require.True(t, bids[0].Amount.Equal(d("7.00")))

	listings, err := service.GetListingsByBidder(ctx, "B")
	require.NoError(t, err)
	require.Len(t, listings, 1)
}

func TestBiddingService_SubmitBid_InvalidInput(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo, WithMaxAmount(d("1000.00")))

	tests := []struct {
		name      string
		listingID string
		bidderID  string
		amount    string
	}{
		{name: "empty_listing_id", listingID: "", bidderID: "A", amount: "10.00"},
		{name: "empty_bidder_id", listingID: "listing1", bidderID: "", amount: "10.00"},
		{name: "zero_amount", listingID: "listing1", bidderID: "A", amount: "0"},
		{name: "negative_amount", listingID: "listing1", bidderID: "A", amount: "-5.00"},
		{name: "below_minimum", listingID: "listing1", bidderID: "A", amount: "0.001"},
		{name: "three_decimals", listingID: "listing1", bidderID: "A", amount: "10.005"},
		{name: "above_maximum", listingID: "listing1", bidderID: "A", amount: "1000.01"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// no repository call is expected: the mock fails the test otherwise
			_, err := service.SubmitBid(context.Background(), tc.listingID, tc.bidderID, d(tc.amount))
			require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
		})
	}
}

func TestBiddingService_SubmitBid_ListingNotFound(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{}
	service := NewBiddingService(repository.NewMemoryRepo(), WithRecorder(recorder))

	outcome, err := service.SubmitBid(context.Background(), "missing", "A", d("10.00"))
	require.NoError(t, err)
	require.Equal(t, models.RejectListingNotFound, outcome.Reason)
	require.ErrorIs(t, outcome.Reason.Err(), biddingerrors.ErrListingNotFound)
	require.Equal(t, []recordedBid{{outcome: OutcomeRejected, reason: models.RejectListingNotFound}}, recorder.bids)
}

// runTx makes the mock repository execute the transaction body against tx
func runTx(tx repository.ListingTx) func(context.Context, string, func(repository.ListingTx) error) error {
	return func(_ context.Context, _ string, fn func(repository.ListingTx) error) error {
		return fn(tx)
	}
}

func TestBiddingService_SubmitBid_Retry(t *testing.T) {
	t.Parallel()

	openListing := models.Listing{ListingID: "listing1", OwnerID: "owner", StartingBid: d("10.00"), Status: models.ListingOpen}
	conflict := fmt.Errorf("lock listing listing1: %w", biddingerrors.ErrConflict)
	storage := fmt.Errorf("save bid: %w", biddingerrors.ErrStorageFailure)

	// expectFirstBid sets up a full successful transaction body
	expectFirstBid := func(mockTx *repository.MockListingTx) {
		mockTx.EXPECT().GetListing().Return(openListing, nil)
		mockTx.EXPECT().GetBidsByListing().Return([]models.Bid{}, nil)
		mockTx.EXPECT().GetBidByBidder("A").Return(models.Bid{}, false, nil)
		mockTx.EXPECT().SaveBid(gomock.Any()).DoAndReturn(func(bid models.Bid) error {
			require.Equal(t, "listing1", bid.ListingID)
			require.True(t, bid.Amount.Equal(d("15.00")))
			return nil
		})
		mockTx.EXPECT().SaveListing(gomock.Any()).DoAndReturn(func(listing models.Listing) error {
			require.NotEmpty(t, listing.HighestBidID)
			return nil
		})
	}

	tests := []struct {
		name        string
		setup       func(mockRepo *repository.MockAuctionDB, mockTx *repository.MockListingTx)
		wantErr     error
		wantOutcome string
	}{
		{
			name: "conflict_then_success",
			setup: func(mockRepo *repository.MockAuctionDB, mockTx *repository.MockListingTx) {
				gomock.InOrder(
					mockRepo.EXPECT().WithListingTx(gomock.Any(), "listing1", gomock.Any()).Return(conflict),
					mockRepo.EXPECT().WithListingTx(gomock.Any(), "listing1", gomock.Any()).DoAndReturn(runTx(mockTx)),
				)
				expectFirstBid(mockTx)
			},
			wantOutcome: OutcomeAccepted,
		},
		{
			name: "conflict_twice_surfaces_conflict",
			setup: func(mockRepo *repository.MockAuctionDB, mockTx *repository.MockListingTx) {
				mockRepo.EXPECT().WithListingTx(gomock.Any(), "listing1", gomock.Any()).Return(conflict).Times(2)
			},
			wantErr:     biddingerrors.ErrConflict,
			wantOutcome: OutcomeError,
		},
		{
			name: "storage_failure_twice_surfaces_storage_failure",
			setup: func(mockRepo *repository.MockAuctionDB, mockTx *repository.MockListingTx) {
				mockRepo.EXPECT().WithListingTx(gomock.Any(), "listing1", gomock.Any()).DoAndReturn(runTx(mockTx)).Times(2)
				mockTx.EXPECT().GetListing().Return(openListing, nil).Times(2)
				mockTx.EXPECT().GetBidsByListing().Return([]models.Bid{}, nil).Times(2)
				mockTx.EXPECT().GetBidByBidder("A").Return(models.Bid{}, false, nil).Times(2)
				mockTx.EXPECT().SaveBid(gomock.Any()).Return(storage).Times(2)
			},
			wantErr:     biddingerrors.ErrStorageFailure,
			wantOutcome: OutcomeError,
		},
		{
			name: "unexpected_error_not_retried",
			setup: func(mockRepo *repository.MockAuctionDB, mockTx *repository.MockListingTx) {
				mockRepo.EXPECT().WithListingTx(gomock.Any(), "listing1", gomock.Any()).Return(errors.New("boom")).Times(1)
			},
			wantErr:     nil,
			wantOutcome: OutcomeError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockRepo := repository.NewMockAuctionDB(ctrl)
			mockTx := repository.NewMockListingTx(ctrl)
			recorder := &fakeRecorder{}
			service := NewBiddingService(mockRepo, WithRecorder(recorder), WithRetryDelay(0))
			tc.setup(mockRepo, mockTx)

			outcome, err := service.SubmitBid(context.Background(), "listing1", "A", d("15.00"))
			switch {
			case tc.wantOutcome == OutcomeAccepted:
				require.NoError(t, err)
				require.True(t, outcome.IsAccepted())
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr)
			default:
				require.Error(t, err)
			}
			require.Len(t, recorder.bids, 1)
			require.Equal(t, tc.wantOutcome, recorder.bids[0].outcome)
		})
	}
}

func TestBiddingService_SubmitBid_TxTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo, WithTxTimeout(25*time.Millisecond), WithRetryDelay(0))

	mockRepo.EXPECT().WithListingTx(gomock.Any(), "listing1", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ func(repository.ListingTx) error) error {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			require.WithinDuration(t, time.Now().Add(25*time.Millisecond), deadline, 25*time.Millisecond)
			<-ctx.Done()
			return fmt.Errorf("lock listing: %w: %w", biddingerrors.ErrConflict, ctx.Err())
		}).Times(2)

	_, err := service.SubmitBid(context.Background(), "listing1", "A", d("15.00"))
	require.ErrorIs(t, err, biddingerrors.ErrConflict)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBiddingService_SubmitBid_RepairsDanglingPointer(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	repo.AddListing(models.Listing{
		ListingID:    "listing1",
		OwnerID:      "owner",
		StartingBid:  d("10.00"),
		Status:       models.ListingOpen,
		HighestBidID: "ghost",
	})
	service := NewBiddingService(repo)

	// no bids exist, so the starting bid applies again
	outcome, err := service.SubmitBid(context.Background(), "listing1", "A", d("9.00"))
	require.NoError(t, err)
	require.Equal(t, models.RejectBidTooLow, outcome.Reason)

	outcome, err = service.SubmitBid(context.Background(), "listing1", "A", d("10.00"))
	require.NoError(t, err)
	require.True(t, outcome.IsAccepted())

	listing, err := repo.GetListing(context.Background(), "listing1")
	require.NoError(t, err)
	require.Equal(t, outcome.Bid.BidID, listing.HighestBidID)
}

func TestBiddingService_SubmitBid_PublishFailureIgnored(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{err: errors.New("redis down")}
	service, _ := newMemoryService(t, "1.00", WithPublisher(publisher))

	outcome := submit(t, service, "A", "2.00")
	require.True(t, outcome.IsAccepted())
	require.Len(t, publisher.Events(), 1)
}

func TestBiddingService_SubmitBid_Concurrent(t *testing.T) {
	t.Parallel()

	// two racing bids over a prior 10.00: the highest bid always ends at 20.00
	for i := 0; i < 20; i++ {
		service, repo := newMemoryService(t, "1.00")
		require.True(t, submit(t, service, "seed", "10.00").IsAccepted())

		var wg sync.WaitGroup
		for _, b := range []struct{ bidder, amount string }{{"A", "15.00"}, {"B", "20.00"}} {
			b := b
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := service.SubmitBid(context.Background(), "listing1", b.bidder, d(b.amount))
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		highest, err := service.GetHighestBid(context.Background(), "listing1")
		require.NoError(t, err)
		require.Equal(t, "B", highest.BidderID)
		require.True(t, highest.Amount.Equal(d("20.00")))

		listing, err := repo.GetListing(context.Background(), "listing1")
		require.NoError(t, err)
		require.Equal(t, highest.BidID, listing.HighestBidID)
	}

	t.Run("many_bidders", func(t *testing.T) {
		t.Parallel()

		service, repo := newMemoryService(t, "1.00")
		var (
			wg          sync.WaitGroup
			mu          sync.Mutex
			maxAccepted decimal.Decimal
		)
		for i := 1; i <= 50; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				amount := decimal.NewFromInt(int64(i))
				outcome, err := service.SubmitBid(context.Background(), "listing1", fmt.Sprintf("bidder-%d", i), amount)
				require.NoError(t, err)
				if outcome.IsAccepted() {
					mu.Lock()
					if amount.GreaterThan(maxAccepted) {
						maxAccepted = amount
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.True(t, maxAccepted.Equal(decimal.NewFromInt(50)))
		listing, err := repo.GetListing(context.Background(), "listing1")
		require.NoError(t, err)
		bid, err := repo.GetBid(context.Background(), listing.HighestBidID)
		require.NoError(t, err)
		require.Equal(t, "bidder-50", bid.BidderID)
	})
}

func TestBiddingService_CloseListing(t *testing.T) {
	t.Parallel()

	t.Run("no_bids_closes_without_winner", func(t *testing.T) {
		t.Parallel()
		recorder := &fakeRecorder{}
		service, _ := newMemoryService(t, "1.00", WithRecorder(recorder))

		outcome, err := service.CloseListing(context.Background(), "listing1", "owner")
		require.NoError(t, err)
		require.Equal(t, "listing1", outcome.ListingID)
		require.False(t, outcome.HasWinner())
		require.Nil(t, outcome.FinalAmount)
		require.Equal(t, []string{CloseNoWinner}, recorder.closes)
	})

	t.Run("not_owner", func(t *testing.T) {
		t.Parallel()
		service, repo := newMemoryService(t, "1.00")
		before, err := repo.GetListing(context.Background(), "listing1")
		require.NoError(t, err)

		_, err = service.CloseListing(context.Background(), "listing1", "intruder")
		require.ErrorIs(t, err, biddingerrors.ErrNotOwner)

		after, err := repo.GetListing(context.Background(), "listing1")
		require.NoError(t, err)
		require.Equal(t, before, after)
	})

	t.Run("second_close_already_closed", func(t *testing.T) {
		t.Parallel()
		service, repo := newMemoryService(t, "1.00")
		require.True(t, submit(t, service, "A", "3.00").IsAccepted())

		_, err := service.CloseListing(context.Background(), "listing1", "owner")
		require.NoError(t, err)
		first, err := repo.GetListing(context.Background(), "listing1")
		require.NoError(t, err)

		_, err = service.CloseListing(context.Background(), "listing1", "owner")
		require.ErrorIs(t, err, biddingerrors.ErrAlreadyClosed)
		second, err := repo.GetListing(context.Background(), "listing1")
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("missing_listing", func(t *testing.T) {
		t.Parallel()
		service := NewBiddingService(repository.NewMemoryRepo())
		_, err := service.CloseListing(context.Background(), "missing", "owner")
		require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
	})

	t.Run("invalid_input", func(t *testing.T) {
		t.Parallel()
		service := NewBiddingService(repository.NewMemoryRepo())
		_, err := service.CloseListing(context.Background(), "listing1", "")
		require.ErrorIs(t, err, biddingerrors.ErrInvalidListing)
	})
}

func TestBiddingService_CreateListing(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := NewBiddingService(repository.NewMemoryRepo(), WithClock(func() time.Time { return fixed }))

	tests := []struct {
		name    string
		input   models.ListingInput
		wantErr error
	}{
		{name: "valid", input: models.ListingInput{OwnerID: "owner", Title: "  Bike  ", StartingBid: d("25.50")}},
		{name: "title_at_limit", input: models.ListingInput{OwnerID: "owner", Title: strings.Repeat("é", MaxTitleLength), StartingBid: d("1.00")}},
		{name: "missing_owner", input: models.ListingInput{Title: "Bike", StartingBid: d("1.00")}, wantErr: biddingerrors.ErrInvalidListing},
		{name: "missing_title", input: models.ListingInput{OwnerID: "owner", Title: "   ", StartingBid: d("1.00")}, wantErr: biddingerrors.ErrInvalidListing},
		{name: "title_too_long", input: models.ListingInput{OwnerID: "owner", Title: strings.Repeat("x", MaxTitleLength+1), StartingBid: d("1.00")}, wantErr: biddingerrors.ErrInvalidListing},
		{name: "zero_starting_bid", input: models.ListingInput{OwnerID: "owner", Title: "Bike", StartingBid: d("0")}, wantErr: biddingerrors.ErrInvalidListing},
		{name: "fractional_cents", input: models.ListingInput{OwnerID: "owner", Title: "Bike", StartingBid: d("1.001")}, wantErr: biddingerrors.ErrInvalidListing},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			listing, err := service.CreateListing(context.Background(), tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			_, err = uuid.Parse(listing.ListingID)
			require.NoError(t, err)
			require.Equal(t, strings.TrimSpace(tc.input.Title), listing.Title)
			require.Equal(t, models.ListingOpen, listing.Status)
			require.False(t, listing.HasHighestBid())
			require.Equal(t, fixed, listing.CreatedAt)

			stored, err := service.GetListing(context.Background(), listing.ListingID)
			require.NoError(t, err)
			require.Equal(t, listing.Title, stored.Title)
		})
	}
}

func TestBiddingService_Queries(t *testing.T) {
	t.Parallel()

	service, _ := newMemoryService(t, "1.00")
	ctx := context.Background()

	_, err := service.GetHighestBid(ctx, "listing1")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	_, err = service.GetHighestBid(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)

	bids, err := service.GetBidsForListing(ctx, "listing1")
	require.NoError(t, err)
	require.Empty(t, bids)

	_, err = service.GetBidsForListing(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidListing)

	_, err = service.GetListing(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)

	_, err = service.ListListings(ctx, "pending")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidListing)

	open, err := service.ListListings(ctx, models.ListingOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)

	_, err = service.CloseListing(ctx, "listing1", "owner")
	require.NoError(t, err)

	open, err = service.ListListings(ctx, models.ListingOpen)
	require.NoError(t, err)
	require.Empty(t, open)
	closed, err := service.ListListings(ctx, models.ListingClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)

	_, err = service.GetListingsByBidder(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
}
