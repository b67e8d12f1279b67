package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/rentalhub-backend/internal/ledger"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
)

type escrowLedger interface {
	HeldForCompletedBookings(ctx context.Context, limit int) ([]models.Payment, error)
	Release(ctx context.Context, input ledger.ReleaseInput) (*models.Payment, bool, error)
}

type deductionSource interface {
	SettlementDeduction(ctx context.Context, bookingID uuid.UUID) (decimal.Decimal, error)
}

type EscrowReconcileJobParams struct {
	Logger    *logger.Logger
	Ledger    escrowLedger
	Bookings  deductionSource
	BatchSize int
}

// NewEscrowReconcileJob releases escrow left held on completed bookings,
// which happens when the post-commit release failed.
func NewEscrowReconcileJob(params EscrowReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &escrowReconcileJob{
		logg:     params.Logger,
		ledger:   params.Ledger,
		bookings: params.Bookings,
		batch:    batch,
	}, nil
}

type escrowReconcileJob struct {
	logg     *logger.Logger
	ledger   escrowLedger
	bookings deductionSource
	batch    int
}

func (j *escrowReconcileJob) Name() string { return "escrow-reconcile" }

func (j *escrowReconcileJob) Run(ctx context.Context) error {
	held, err := j.ledger.HeldForCompletedBookings(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list held escrow: %w", err)
	}
	var (
		released int
		errs     error
	)
	for _, payment := range held {
		bookingID := payment.BookingRequestID
		deduction, err := j.bookings.SettlementDeduction(ctx, bookingID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("booking %s deduction: %w", bookingID, err))
			continue
		}
		_, applied, err := j.ledger.Release(ctx, ledger.ReleaseInput{
			BookingID:       bookingID,
			DeductionAmount: deduction,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("booking %s release: %w", bookingID, err))
			continue
		}
		if applied {
			released++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(held),
		"released":   released,
	}), "escrow reconcile complete")
	return errs
}
