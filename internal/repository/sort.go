package repository

import (
	"sort"

	model "auctions/internal/models"
)

// SortBids orders bids highest amount first; equal amounts keep the bid that
// reached the amount first ahead, then the lowest ID.
func SortBids(bids []model.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Amount.Cmp(bids[j].Amount); c != 0 {
			return c > 0
		}
		if !bids[i].UpdatedAt.Equal(bids[j].UpdatedAt) {
			return bids[i].UpdatedAt.Before(bids[j].UpdatedAt)
		}
		return bids[i].BidID < bids[j].BidID
	})
}

// SortListings orders listings newest first, then by ID.
func SortListings(listings []model.Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		if !listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].CreatedAt.After(listings[j].CreatedAt)
		}
		return listings[i].ListingID < listings[j].ListingID
	})
}
