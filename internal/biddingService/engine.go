package bidding

import (
	"time"

	"auctions/internal/models"
	"auctions/internal/money"
	"auctions/internal/repository"
	"auctions/utils"

	"github.com/shopspring/decimal"
)

// evaluateBid is the bid state-transition rule. highest is the listing's
// leading bid and standing the bidder's own row; either may be nil.
func evaluateBid(listing models.Listing, highest, standing *models.Bid, bidderID string, amount decimal.Decimal) models.RejectReason {
	if !listing.IsOpen() {
		return models.RejectListingClosed
	}
	// a bidder's amount never goes down
	if standing != nil && amount.LessThan(standing.Amount) {
		return models.RejectBidTooLow
	}
	if highest == nil {
		if amount.LessThan(listing.StartingBid) {
			return models.RejectBidTooLow
		}
		return models.RejectNone
	}
	switch amount.Cmp(highest.Amount) {
	case -1:
		return models.RejectBidTooLow
	case 0:
		if highest.BidderID != bidderID {
			return models.RejectBidNotHigher
		}
	}
	return models.RejectNone
}

// resolveHighest follows the listing's highest-bid pointer. A pointer that is
// empty while bids exist, or that names a missing bid, is rebuilt from the
// listing's bids; repaired reports whether that happened.
func resolveHighest(tx repository.ListingTx, listing models.Listing) (highest *models.Bid, repaired bool, err error) {
	if listing.HasHighestBid() {
		bid, found, err := tx.GetBid(listing.HighestBidID)
		if err != nil {
			return nil, false, err
		}
		if found && bid.ListingID == listing.ListingID {
			return &bid, false, nil
		}
	}

	bids, err := tx.GetBidsByListing()
	if err != nil {
		return nil, false, err
	}
	best, ok := money.Highest(bids)
	if !ok {
		return nil, listing.HasHighestBid(), nil
	}
	return &best, true, nil
}

// bidDecision is the result of running the rule inside a listing transaction.
type bidDecision struct {
	outcome  models.BidOutcome
	previous *decimal.Decimal
	repaired bool
}

// placeBid loads the listing state, evaluates the bid and, only when it is
// accepted, writes the bidder's row and the listing pointer.
func placeBid(tx repository.ListingTx, bidderID string, amount decimal.Decimal, now time.Time) (bidDecision, error) {
	listing, err := tx.GetListing()
	if err != nil {
		return bidDecision{}, err
	}
	highest, repaired, err := resolveHighest(tx, listing)
	if err != nil {
		return bidDecision{}, err
	}
	standingBid, hasStanding, err := tx.GetBidByBidder(bidderID)
	if err != nil {
		return bidDecision{}, err
	}
	var standing *models.Bid
	if hasStanding {
		standing = &standingBid
	}

	decision := bidDecision{repaired: repaired}
	if highest != nil {
		prev := highest.Amount
		decision.previous = &prev
	}

	if reason := evaluateBid(listing, highest, standing, bidderID, amount); reason != models.RejectNone {
		decision.outcome = models.Rejected(reason)
		decision.outcome.HighestAmount = currentAmount(highest)
		return decision, nil
	}

	// the incumbent repeating its own amount changes nothing
	if standing != nil && highest != nil && standing.BidID == highest.BidID && amount.Equal(standing.Amount) && !repaired {
		decision.outcome = models.Accepted(*standing)
		return decision, nil
	}

	bid := models.Bid{
		BidID:     utils.GenerateID(),
		ListingID: listing.ListingID,
		BidderID:  bidderID,
		CreatedAt: now,
	}
	if standing != nil {
		bid = *standing
	}
	bid.Amount = amount
	bid.UpdatedAt = now

	if err := tx.SaveBid(bid); err != nil {
		return bidDecision{}, err
	}
	listing.HighestBidID = bid.BidID
	if err := tx.SaveListing(listing); err != nil {
		return bidDecision{}, err
	}

	decision.outcome = models.Accepted(bid)
	return decision, nil
}

// closeDecision is the result of closing inside a listing transaction.
type closeDecision struct {
	outcome  models.CloseOutcome
	repaired bool
}

// closeListing freezes the listing's leading bid as the winner.
func closeListing(tx repository.ListingTx, requesterID string, now time.Time) (closeDecision, error) {
	listing, err := tx.GetListing()
	if err != nil {
		return closeDecision{}, err
	}
	if listing.OwnerID != requesterID {
		return closeDecision{}, errNotOwner(listing.ListingID, requesterID)
	}
	if !listing.IsOpen() {
		return closeDecision{}, errAlreadyClosed(listing.ListingID)
	}

	highest, repaired, err := resolveHighest(tx, listing)
	if err != nil {
		return closeDecision{}, err
	}

	decision := closeDecision{
		outcome:  models.CloseOutcome{ListingID: listing.ListingID},
		repaired: repaired,
	}
	listing.HighestBidID = ""
	if highest != nil {
		winner := highest.BidderID
		amount := highest.Amount
		decision.outcome.Winner = &winner
		decision.outcome.FinalAmount = &amount
		listing.HighestBidID = highest.BidID
	}

	closedAt := now
	listing.Status = models.ListingClosed
	listing.ClosedAt = &closedAt
	if err := tx.SaveListing(listing); err != nil {
		return closeDecision{}, err
	}
	return decision, nil
}

// reconcileListing points an open listing at its true leading bid.
func reconcileListing(tx repository.ListingTx) (bool, error) {
	listing, err := tx.GetListing()
	if err != nil {
		return false, err
	}
	if !listing.IsOpen() {
		return false, nil
	}
	bids, err := tx.GetBidsByListing()
	if err != nil {
		return false, err
	}
	want := ""
	if best, ok := money.Highest(bids); ok {
		want = best.BidID
	}
	if listing.HighestBidID == want {
		return false, nil
	}
	listing.HighestBidID = want
	if err := tx.SaveListing(listing); err != nil {
		return false, err
	}
	return true, nil
}

func currentAmount(highest *models.Bid) decimal.Decimal {
	if highest == nil {
		return decimal.Zero
	}
	return highest.Amount
}
