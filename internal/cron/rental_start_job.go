package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
)

const defaultBatchSize = 100

type rentalStarter interface {
	StartDueRentals(ctx context.Context, limit int) (int, error)
}

type RentalStartJobParams struct {
	Logger    *logger.Logger
	Bookings  rentalStarter
	BatchSize int
}

// NewRentalStartJob moves confirmed bookings whose start date has arrived
// into the active state.
func NewRentalStartJob(params RentalStartJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &rentalStartJob{logg: params.Logger, bookings: params.Bookings, batch: batch}, nil
}

type rentalStartJob struct {
	logg     *logger.Logger
	bookings rentalStarter
	batch    int
}

func (j *rentalStartJob) Name() string { return "rental-start" }

func (j *rentalStartJob) Run(ctx context.Context) error {
	started, err := j.bookings.StartDueRentals(ctx, j.batch)
	j.logg.Info(j.logg.WithField(ctx, "rentals_started", started), "rental start sweep complete")
	if err != nil {
		return fmt.Errorf("rental start: %w", err)
	}
	return nil
}
