package models

import "github.com/shopspring/decimal"

// ListingInput carries the owner-supplied fields of a new listing.
type ListingInput struct {
	OwnerID     string
	Title       string
	Description string
	ImageURL    string
	StartingBid decimal.Decimal
}

// Registration carries the fields of an account sign-up.
type Registration struct {
	Username     string
	Email        string
	Password     string
	Confirmation string
}
