package postgres

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	model "auctions/internal/models"
)

// GORM models used for persistence. Timestamps are written by the service,
// so gorm's automatic time tracking is switched off.
type ListingModel struct {
	ListingID    string          `gorm:"primaryKey"`
	OwnerID      string          `gorm:"not null;index"`
	Title        string          `gorm:"not null"`
	Description  string          `gorm:"not null;default:''"`
	ImageURL     string          `gorm:"not null;default:''"`
	StartingBid  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status       string          `gorm:"not null;index"`
	HighestBidID string          `gorm:"not null;default:''"`
	CreatedAt    time.Time       `gorm:"not null;autoCreateTime:false"`
	ClosedAt     *time.Time
}

func (ListingModel) TableName() string { return "listings" }

type BidModel struct {
	BidID     string          `gorm:"primaryKey"`
	ListingID string          `gorm:"not null;uniqueIndex:idx_bids_listing_bidder"`
	BidderID  string          `gorm:"not null;uniqueIndex:idx_bids_listing_bidder;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime:false"`
}

func (BidModel) TableName() string { return "bids" }

type WatchlistModel struct {
	UserID    string `gorm:"primaryKey"`
	ListingID string `gorm:"primaryKey"`
}

func (WatchlistModel) TableName() string { return "watchlist" }

type UserModel struct {
	UserID        string    `gorm:"primaryKey"`
	Username      string    `gorm:"not null"`
	UsernameLower string    `gorm:"not null;uniqueIndex"`
	Email         string    `gorm:"not null;default:''"`
	PasswordHash  string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime:false"`
}

func (UserModel) TableName() string { return "users" }

func listingToModel(l model.Listing) ListingModel {
	return ListingModel{
		ListingID:    l.ListingID,
		OwnerID:      l.OwnerID,
		Title:        l.Title,
		Description:  l.Description,
		ImageURL:     l.ImageURL,
		StartingBid:  l.StartingBid,
		Status:       string(l.Status),
		HighestBidID: l.HighestBidID,
		CreatedAt:    l.CreatedAt.UTC(),
		ClosedAt:     utcPtr(l.ClosedAt),
	}
}

func listingFromModel(m ListingModel) model.Listing {
	return model.Listing{
		ListingID:    m.ListingID,
		OwnerID:      m.OwnerID,
		Title:        m.Title,
		Description:  m.Description,
		ImageURL:     m.ImageURL,
		StartingBid:  m.StartingBid,
		Status:       model.ListingStatus(m.Status),
		HighestBidID: m.HighestBidID,
		CreatedAt:    m.CreatedAt.UTC(),
		ClosedAt:     utcPtr(m.ClosedAt),
	}
}

func listingsFromModels(models []ListingModel) []model.Listing {
	res := make([]model.Listing, 0, len(models))
	for _, m := range models {
		res = append(res, listingFromModel(m))
	}
	return res
}

func bidToModel(b model.Bid) BidModel {
	return BidModel{
		BidID:     b.BidID,
		ListingID: b.ListingID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt.UTC(),
		UpdatedAt: b.UpdatedAt.UTC(),
	}
}

func bidFromModel(m BidModel) model.Bid {
	return model.Bid{
		BidID:     m.BidID,
		ListingID: m.ListingID,
		BidderID:  m.BidderID,
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func userToModel(u model.User) UserModel {
	return UserModel{
		UserID:        u.UserID,
		Username:      u.Username,
		UsernameLower: strings.ToLower(u.Username),
		Email:         u.Email,
		PasswordHash:  u.PasswordHash,
		CreatedAt:     u.CreatedAt.UTC(),
	}
}

func userFromModel(m UserModel) model.User {
	return model.User{
		UserID:       m.UserID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
