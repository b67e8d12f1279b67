package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

const transitionSQL = `UPDATE "booking_requests" SET .+ WHERE .*id = \$\d+ AND status IN \(\$\d+,\$\d+\)`

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return NewRepository(conn), mock
}

func TestTransitionStatusIsConditionalOnSourceStatuses(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusPaid}

	mock.ExpectExec(transitionSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.TransitionStatus(context.Background(), uuid.New(), from, enums.BookingStatusAwaitingPickupInspection, map[string]any{
		"updated_at": time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectExec(transitionSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.TransitionStatus(context.Background(), uuid.New(), from, enums.BookingStatusAwaitingPickupInspection, nil)
	require.NoError(t, err)
	require.False(t, ok, "zero rows affected means another writer moved the booking")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusSecondWriterLoses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.seed(t, enums.BookingStatusActive, h.now)
	from := []enums.BookingStatus{enums.BookingStatusActive}

	ok, err := h.repo.TransitionStatus(ctx, booking.ID, from, enums.BookingStatusAwaitingReturnInspection, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.repo.TransitionStatus(ctx, booking.ID, from, enums.BookingStatusAwaitingReturnInspection, nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, enums.BookingStatusAwaitingReturnInspection, h.status(t, booking.ID))
}

func TestDamageClaimResolvesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	booking := h.seed(t, enums.BookingStatusDisputed, h.now)

	_, err := h.repo.FindOpenDamageClaim(ctx, booking.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	claim := &models.DamageClaim{BookingID: booking.ID, FiledBy: booking.OwnerID, DamageDescription: "scratched", Status: enums.DamageClaimStatusPending}
	require.NoError(t, h.repo.CreateDamageClaim(ctx, claim))

	open, err := h.repo.FindOpenDamageClaim(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, claim.ID, open.ID)

	updates := map[string]any{"deduction_amount": decimal.NewNullDecimal(decimal.NewFromInt(10))}
	ok, err := h.repo.ResolveDamageClaim(ctx, claim.ID, updates)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.repo.ResolveDamageClaim(ctx, claim.ID, updates)
	require.NoError(t, err)
	require.False(t, ok)

	latest, err := h.repo.LatestDamageClaim(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DamageClaimStatusResolved, latest.Status)
}
