package providers

import (
	"context"
	"time"
)

// PollPayment checks a QR payment on a fixed interval until the vendor
// reports a terminal status or ctx is cancelled. Closing the owning dialog
// cancels the context; the poller never outlives its flow. Cancellation
// maps to PaymentCanceled so the caller has one status to act on.
func PollPayment(ctx context.Context, payments QRPayments, orderID string, interval time.Duration) (PaymentStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return PaymentCanceled, nil
		case <-ticker.C:
			status, err := payments.CheckPayment(ctx, orderID)
			if err != nil {
				return PaymentCanceled, err
			}
			if status != PaymentWait {
				return status, nil
			}
		}
	}
}
