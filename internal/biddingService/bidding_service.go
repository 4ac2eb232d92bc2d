package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"auctions/internal/biddingerrors"
	"auctions/internal/models"
	"auctions/internal/money"
	"auctions/internal/repository"
	"auctions/utils"

	"github.com/shopspring/decimal"
)

// MaxTitleLength is the longest listing title accepted, in characters.
const MaxTitleLength = 64

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo        repository.AuctionDB
	publisher   Publisher
	recorder    Recorder
	txTimeout   time.Duration
	maxAttempts int
	retryDelay  time.Duration
	maxAmount   decimal.Decimal
	now         func() time.Time
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:        repo,
		publisher:   nopPublisher{},
		recorder:    nopRecorder{},
		txTimeout:   defaultTxTimeout,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitBid evaluates a bid against the listing's current state and applies
// it when accepted. Rejections are reported in the outcome, not as errors;
// the error is reserved for invalid input and storage trouble.
func (s *BiddingService) SubmitBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (models.BidOutcome, error) {
	if listingID == "" || bidderID == "" {
		return models.BidOutcome{}, fmt.Errorf("service: %w - missing listingID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if err := money.Validate(amount, s.maxAmount); err != nil {
		return models.BidOutcome{}, fmt.Errorf("service: %w", err)
	}

	var decision bidDecision
	err := s.withListingTx(ctx, listingID, func(tx repository.ListingTx) error {
		var err error
		decision, err = placeBid(tx, bidderID, amount, s.now())
		return err
	})
	if errors.Is(err, biddingerrors.ErrListingNotFound) {
		s.recorder.RecordBid(OutcomeRejected, models.RejectListingNotFound)
		return models.Rejected(models.RejectListingNotFound), nil
	}
	if err != nil {
		s.recorder.RecordBid(OutcomeError, models.RejectNone)
		utils.Error("Failed to submit bid", map[string]any{
			"listing_id": listingID,
			"bidder_id":  bidderID,
			"error":      err.Error(),
		})
		return models.BidOutcome{}, fmt.Errorf("service: failed to submit bid on listing %s by %s: %w", listingID, bidderID, err)
	}

	outcome := decision.outcome
	if decision.repaired {
		utils.Warn("Highest bid pointer was inconsistent", map[string]any{
			"listing_id": listingID,
			"repaired":   outcome.IsAccepted(),
		})
	}
	if !outcome.IsAccepted() {
		s.recorder.RecordBid(OutcomeRejected, outcome.Reason)
		return outcome, nil
	}

	s.recorder.RecordBid(OutcomeAccepted, models.RejectNone)
	bid := *outcome.Bid
	s.publish(ctx, models.AuctionEvent{
		Type:           models.EventBidAccepted,
		ListingID:      listingID,
		BidID:          bid.BidID,
		BidderID:       bid.BidderID,
		Amount:         &bid.Amount,
		PreviousAmount: decision.previous,
	})
	return outcome, nil
}

// CloseListing moves an open listing to closed on behalf of its owner and
// reports the winner, if any.
func (s *BiddingService) CloseListing(ctx context.Context, listingID, requesterID string) (models.CloseOutcome, error) {
	if listingID == "" || requesterID == "" {
		return models.CloseOutcome{}, fmt.Errorf("service: %w - missing listingID or requesterID", biddingerrors.ErrInvalidListing)
	}

	var decision closeDecision
	err := s.withListingTx(ctx, listingID, func(tx repository.ListingTx) error {
		var err error
		decision, err = closeListing(tx, requesterID, s.now())
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, biddingerrors.ErrNotOwner):
			s.recorder.RecordClose(CloseNotOwner)
		case errors.Is(err, biddingerrors.ErrAlreadyClosed):
			s.recorder.RecordClose(CloseAlreadyClosed)
		default:
			s.recorder.RecordClose(CloseError)
		}
		return models.CloseOutcome{}, fmt.Errorf("service: failed to close listing %s: %w", listingID, err)
	}

	outcome := decision.outcome
	event := models.AuctionEvent{Type: models.EventListingClosed, ListingID: listingID}
	if outcome.HasWinner() {
		s.recorder.RecordClose(CloseWinner)
		event.WinnerID = *outcome.Winner
		event.Amount = outcome.FinalAmount
	} else {
		s.recorder.RecordClose(CloseNoWinner)
	}
	s.publish(ctx, event)
	return outcome, nil
}

// Reconcile recomputes an open listing's highest bid from its bids and
// repairs the pointer when it disagrees. It reports whether a repair happened.
func (s *BiddingService) Reconcile(ctx context.Context, listingID string) (bool, error) {
	var repaired bool
	err := s.withListingTx(ctx, listingID, func(tx repository.ListingTx) error {
		var err error
		repaired, err = reconcileListing(tx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("service: failed to reconcile listing %s: %w", listingID, err)
	}
	if repaired {
		utils.Warn("Repaired highest bid pointer", map[string]any{"listing_id": listingID})
	}
	return repaired, nil
}

// CreateListing validates and stores a new open listing
func (s *BiddingService) CreateListing(ctx context.Context, input models.ListingInput) (models.Listing, error) {
	title := strings.TrimSpace(input.Title)
	switch {
	case input.OwnerID == "":
		return models.Listing{}, fmt.Errorf("service: %w - missing ownerID", biddingerrors.ErrInvalidListing)
	case title == "":
		return models.Listing{}, fmt.Errorf("service: %w - missing title", biddingerrors.ErrInvalidListing)
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return models.Listing{}, fmt.Errorf("service: %w - title longer than %d characters", biddingerrors.ErrInvalidListing, MaxTitleLength)
	}
	if err := money.Validate(input.StartingBid, s.maxAmount); err != nil {
		return models.Listing{}, fmt.Errorf("service: %w - starting bid: %v", biddingerrors.ErrInvalidListing, err)
	}

	listing := models.Listing{
		ListingID:   utils.GenerateID(),
		OwnerID:     input.OwnerID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		StartingBid: input.StartingBid,
		Status:      models.ListingOpen,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return models.Listing{}, fmt.Errorf("service: failed to create listing: %w", err)
	}
	return listing, nil
}

// GetListing returns a listing by ID
func (s *BiddingService) GetListing(ctx context.Context, listingID string) (models.Listing, error) {
	if listingID == "" {
		return models.Listing{}, fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, fmt.Errorf("service: failed to get listing %s: %w", listingID, err)
	}
	return listing, nil
}

// ListListings returns open or closed listings, or all when status is empty, newest first
func (s *BiddingService) ListListings(ctx context.Context, status models.ListingStatus) ([]models.Listing, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", biddingerrors.ErrInvalidListing, status)
	}
	listings, err := s.repo.ListListings(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list listings: %w", err)
	}
	return listings, nil
}

// GetBidsForListing returns all bids for a listing, highest first
func (s *BiddingService) GetBidsForListing(ctx context.Context, listingID string) ([]models.Bid, error) {
	if listingID == "" {
		return nil, fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}
	bids, err := s.repo.GetBidsByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for listing %s: %w", listingID, err)
	}
	return bids, nil
}

// GetHighestBid returns the leading bid for a listing
func (s *BiddingService) GetHighestBid(ctx context.Context, listingID string) (models.Bid, error) {
	listing, err := s.GetListing(ctx, listingID)
	if err != nil {
		return models.Bid{}, err
	}
	if listing.HasHighestBid() {
		bid, err := s.repo.GetBid(ctx, listing.HighestBidID)
		if err == nil && bid.ListingID == listingID {
			return bid, nil
		}
		if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
			return models.Bid{}, fmt.Errorf("service: failed to get highest bid for listing %s: %w", listingID, err)
		}
	}

	// no pointer, or a dangling one: derive from the bids themselves
	bids, err := s.repo.GetBidsByListing(ctx, listingID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get highest bid for listing %s: %w", listingID, err)
	}
	best, ok := money.Highest(bids)
	if !ok {
		return models.Bid{}, fmt.Errorf("service: %w - listing %s", biddingerrors.ErrNoBids, listingID)
	}
	return best, nil
}

// GetListingsByBidder returns all listings a user has placed bids on
func (s *BiddingService) GetListingsByBidder(ctx context.Context, bidderID string) ([]models.Listing, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", biddingerrors.ErrInvalidBid)
	}
	listings, err := s.repo.GetListingsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get listings for bidder %s: %w", bidderID, err)
	}
	return listings, nil
}

// withListingTx runs fn in a listing transaction bounded by the attempt
// timeout, retrying once when the store reports contention or a failure.
func (s *BiddingService) withListingTx(ctx context.Context, listingID string, fn func(tx repository.ListingTx) error) error {
	return utils.Retry(ctx, s.maxAttempts, s.retryDelay, biddingerrors.IsRetryable, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
		return s.repo.WithListingTx(attemptCtx, listingID, fn)
	})
}

func (s *BiddingService) publish(ctx context.Context, event models.AuctionEvent) {
	event.EventID = utils.GenerateID()
	event.Timestamp = s.now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		utils.Warn("Failed to publish auction event", map[string]any{
			"event_type": event.Type,
			"listing_id": event.ListingID,
			"error":      err.Error(),
		})
	}
}

func errNotOwner(listingID, requesterID string) error {
	return fmt.Errorf("%w - %s does not own listing %s", biddingerrors.ErrNotOwner, requesterID, listingID)
}

func errAlreadyClosed(listingID string) error {
	return fmt.Errorf("%w - listing %s", biddingerrors.ErrAlreadyClosed, listingID)
}
