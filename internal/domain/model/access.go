package model

import "time"

type AccessKind string

const (
	AccessKindRental   AccessKind = "rental"
	AccessKindPurchase AccessKind = "purchase"
)

// RentalWindow is how long a rental grant stays valid.
const RentalWindow = 7 * 24 * time.Hour

// AccessGrant is a user's entitlement to view one film. A purchase grant is
// permanent (nil expiry); a rental grant expires RentalWindow after creation.
// Grants are upserted keyed by (UserID, FilmID): a later grant overwrites the
// earlier one's kind and expiry.
type AccessGrant struct {
	UserID    string
	FilmID    string
	Kind      AccessKind
	ExpiresAt *time.Time // nil = permanent
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccessGrant builds the grant a settled transaction entitles the user to.
func NewAccessGrant(userID, filmID string, kind TransactionKind, now time.Time) AccessGrant {
	g := AccessGrant{
		UserID:    userID,
		FilmID:    filmID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kind == TransactionKindPurchase {
		g.Kind = AccessKindPurchase
		return g
	}
	g.Kind = AccessKindRental
	exp := now.Add(RentalWindow)
	g.ExpiresAt = &exp
	return g
}

// Active reports whether the grant still entitles viewing at instant now.
func (g AccessGrant) Active(now time.Time) bool {
	if g.Kind == AccessKindPurchase || g.ExpiresAt == nil {
		return true
	}
	return g.ExpiresAt.After(now)
}
