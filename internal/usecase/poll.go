// File: internal/usecase/poll.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
)

var errStillPending = errors.New("payment still pending")

// PollUntilSettled re-verifies the transaction on a fixed interval until the
// provider reports a final state or the attempt budget runs out. An exhausted
// budget is not an error: the last observed (pending) transaction is returned
// and the reconciler picks the row up later.
func (u *paymentUC) PollUntilSettled(ctx context.Context, userID, transactionID string, interval time.Duration, maxAttempts uint64) (*model.Transaction, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if maxAttempts == 0 {
		maxAttempts = 10
	}

	var last *model.Transaction
	b := retry.WithMaxRetries(maxAttempts, retry.NewConstant(interval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		t, err := u.Verify(ctx, userID, transactionID)
		if err != nil {
			return err // terminal: not found, not owner, amount mismatch
		}
		last = t
		if t.Status == model.TransactionStatusPending {
			return retry.RetryableError(errStillPending)
		}
		return nil
	})
	if err != nil && errors.Is(err, errStillPending) {
		return last, nil
	}
	if err != nil {
		return last, err
	}
	return last, nil
}
