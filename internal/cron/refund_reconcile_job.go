package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/rentalhub-backend/internal/ledger"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
)

type refundLedger interface {
	HeldForCancelledBookings(ctx context.Context, limit int) ([]models.Payment, error)
	Refund(ctx context.Context, input ledger.RefundInput) (*models.Payment, bool, error)
	RetryProcessorRefunds(ctx context.Context, limit int) (int, error)
}

type RefundReconcileJobParams struct {
	Logger    *logger.Logger
	Ledger    refundLedger
	BatchSize int
}

// NewRefundReconcileJob refunds payments still held on cancelled bookings,
// then retries processor refunds the ledger already marked refunded.
func NewRefundReconcileJob(params RefundReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &refundReconcileJob{logg: params.Logger, ledger: params.Ledger, batch: batch}, nil
}

type refundReconcileJob struct {
	logg   *logger.Logger
	ledger refundLedger
	batch  int
}

func (j *refundReconcileJob) Name() string { return "refund-reconcile" }

func (j *refundReconcileJob) Run(ctx context.Context) error {
	var errs error

	held, err := j.ledger.HeldForCancelledBookings(ctx, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list held escrow on cancelled bookings: %w", err))
	}
	refunded := 0
	for _, payment := range held {
		bookingID := payment.BookingRequestID
		_, applied, err := j.ledger.Refund(ctx, ledger.RefundInput{
			BookingID: bookingID,
			Reason:    ledger.CancellationRefundReason,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("booking %s refund: %w", bookingID, err))
			continue
		}
		if applied {
			refunded++
		}
	}

	retried, err := j.ledger.RetryProcessorRefunds(ctx, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("retry processor refunds: %w", err))
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cancelled_candidates": len(held),
		"cancelled_refunded":   refunded,
		"refunds_reconciled":   retried,
	}), "refund reconcile complete")
	if errs != nil {
		return fmt.Errorf("refund reconcile: %w", errs)
	}
	return nil
}
