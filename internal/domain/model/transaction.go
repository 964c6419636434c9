package model

import "time"

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"   // created locally; awaiting provider outcome
	TransactionStatusCompleted TransactionStatus = "completed" // verified at provider, access granted
	TransactionStatusFailed    TransactionStatus = "failed"    // declined, cancelled, or amount mismatch
)

type TransactionKind string

const (
	TransactionKindRental       TransactionKind = "rental"
	TransactionKindPurchase     TransactionKind = "purchase"
	TransactionKindSubscription TransactionKind = "subscription"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindRental, TransactionKindPurchase, TransactionKindSubscription:
		return true
	}
	return false
}

// PlatformFeePercent is the share of every settled transaction retained by the
// platform; the remainder is attributable to the content owner.
const PlatformFeePercent = 10

// Transaction is the durable record of a single payment attempt.
// Status transitions only pending->completed or pending->failed, once.
type Transaction struct {
	ID            string // ULID
	UserID        string
	FilmID        string
	Kind          TransactionKind
	Amount        int64 // minor units (cents for USD, 100ths of KES, ...)
	Currency      string
	Provider      string  // set once an adapter accepted the payment
	ProviderTxID  *string // provider-assigned id; nil until initiation succeeds
	Status        TransactionStatus
	OwnerAmount   int64 // 90% share, recorded at settlement
	PlatformFee   int64 // 10% share, recorded at settlement
	ProviderRef   string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SettledAt     *time.Time
}

// SplitRevenue returns the owner/platform shares of amount in minor units.
// The shares always sum to amount exactly; rounding loss goes to the fee.
func SplitRevenue(amount int64) (owner, fee int64) {
	owner = amount * (100 - PlatformFeePercent) / 100
	fee = amount - owner
	return owner, fee
}
