package model

import "time"

type FilmStatus string

const (
	FilmStatusDraft     FilmStatus = "draft"
	FilmStatusPublished FilmStatus = "published"
)

type Film struct {
	ID            string
	Title         string
	RentalPrice   int64 // minor units; 0 = not rentable
	PurchasePrice int64 // minor units; 0 = not purchasable
	Currency      string
	Status        FilmStatus
	OwnerID       string // the filmmaker the 90% share belongs to
	CreatedAt     time.Time
}

// PriceFor returns the price for a transaction kind, 0 when unavailable.
func (f *Film) PriceFor(kind TransactionKind) int64 {
	switch kind {
	case TransactionKindRental:
		return f.RentalPrice
	case TransactionKindPurchase:
		return f.PurchasePrice
	default:
		return 0
	}
}
