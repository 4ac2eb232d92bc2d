// Package watchlist manages the set of listings each user follows.
package watchlist

import (
	"context"
	"fmt"

	"auctions/internal/biddingerrors"
	"auctions/internal/models"
)

// Storage is the slice of the repository the watchlist needs.
type Storage interface {
	AddToWatchlist(ctx context.Context, userID, listingID string) error
	RemoveFromWatchlist(ctx context.Context, userID, listingID string) error
	GetWatchlist(ctx context.Context, userID string) ([]models.Listing, error)
}

// WatchlistService implements idempotent add and remove over a user's watchlist.
type WatchlistService struct {
	storage Storage
}

// NewWatchlistService creates a new WatchlistService instance
func NewWatchlistService(storage Storage) *WatchlistService {
	return &WatchlistService{storage: storage}
}

// Add puts a listing on the user's watchlist. Adding it again is a no-op.
func (s *WatchlistService) Add(ctx context.Context, userID, listingID string) error {
	if err := validate(userID, listingID); err != nil {
		return err
	}
	if err := s.storage.AddToWatchlist(ctx, userID, listingID); err != nil {
		return fmt.Errorf("watchlist: failed to add listing %s for %s: %w", listingID, userID, err)
	}
	return nil
}

// Remove takes a listing off the user's watchlist. Removing an absent listing is a no-op.
func (s *WatchlistService) Remove(ctx context.Context, userID, listingID string) error {
	if err := validate(userID, listingID); err != nil {
		return err
	}
	if err := s.storage.RemoveFromWatchlist(ctx, userID, listingID); err != nil {
		return fmt.Errorf("watchlist: failed to remove listing %s for %s: %w", listingID, userID, err)
	}
	return nil
}

// List returns the listings the user watches, newest first.
func (s *WatchlistService) List(ctx context.Context, userID string) ([]models.Listing, error) {
	if userID == "" {
		return nil, fmt.Errorf("watchlist: %w - empty user ID", biddingerrors.ErrInvalidUser)
	}
	listings, err := s.storage.GetWatchlist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("watchlist: failed to list for %s: %w", userID, err)
	}
	return listings, nil
}

func validate(userID, listingID string) error {
	if userID == "" {
		return fmt.Errorf("watchlist: %w - empty user ID", biddingerrors.ErrInvalidUser)
	}
	if listingID == "" {
		return fmt.Errorf("watchlist: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}
	return nil
}
