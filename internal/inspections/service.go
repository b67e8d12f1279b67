package inspections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

const maxPhotos = 20

// BookingReader loads the booking an inspection belongs to.
type BookingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.BookingRequest, error)
}

// Service verifies and records inspections.
type Service interface {
	RequireRenterVerified(ctx context.Context, bookingID uuid.UUID, kind enums.InspectionType) error
	Submit(ctx context.Context, input SubmitInput) (*models.Inspection, error)
	MarkOwnerVerified(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, kind enums.InspectionType) error
	List(ctx context.Context, bookingID, actorID uuid.UUID) ([]models.Inspection, error)
}

// SubmitInput is the renter's sign-off on the equipment condition.
type SubmitInput struct {
	BookingID uuid.UUID
	ActorID   uuid.UUID
	Type      enums.InspectionType
	Notes     string
	PhotoURLs []string
}

// submitWindow is the booking status during which each inspection type is
// accepted.
var submitWindow = map[enums.InspectionType]enums.BookingStatus{
	enums.InspectionTypePickup: enums.BookingStatusAwaitingPickupInspection,
	enums.InspectionTypeReturn: enums.BookingStatusAwaitingReturnInspection,
}

type service struct {
	repo     Repository
	bookings BookingReader
	now      func() time.Time
}

// NewService wires the inspection verifier.
func NewService(repo Repository, bookings BookingReader, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inspection repository required")
	}
	if bookings == nil {
		return nil, fmt.Errorf("booking reader required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, bookings: bookings, now: now}, nil
}

func (s *service) RequireRenterVerified(ctx context.Context, bookingID uuid.UUID, kind enums.InspectionType) error {
	inspection, err := s.repo.Find(ctx, bookingID, kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodePrecondition, fmt.Sprintf("%s inspection has not been submitted", kind)).
				WithDetails(map[string]any{"requirement": fmt.Sprintf("%s_inspection_verified_by_renter", kind)})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inspection")
	}
	if !inspection.VerifiedByRenter {
		return pkgerrors.New(pkgerrors.CodePrecondition, fmt.Sprintf("%s inspection is not verified by the renter", kind)).
			WithDetails(map[string]any{"requirement": fmt.Sprintf("%s_inspection_verified_by_renter", kind)})
	}
	return nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Inspection, error) {
	window, ok := submitWindow[input.Type]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid inspection type")
	}
	if len(input.PhotoURLs) > maxPhotos {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d photos are allowed", maxPhotos))
	}

	booking, err := s.loadBooking(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.RenterID != input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the renter can submit an inspection").
			WithDetails(map[string]any{"required_role": "renter"})
	}
	if booking.Status != window {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("%s inspection is not accepted in the current status", input.Type)).
			WithDetails(map[string]any{
				"current_status": booking.Status,
				"allowed_from":   []enums.BookingStatus{window},
			})
	}

	now := s.now().UTC()
	row := &models.Inspection{
		BookingID:        booking.ID,
		InspectionType:   input.Type,
		VerifiedByRenter: true,
		RenterVerifiedAt: &now,
		PhotoURLs:        pq.StringArray(cleanURLs(input.PhotoURLs)),
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		row.Notes = &notes
	}
	if err := s.repo.UpsertRenterVerification(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inspection")
	}
	stored, err := s.repo.Find(ctx, booking.ID, input.Type)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload inspection")
	}
	return stored, nil
}

// MarkOwnerVerified records the owner's sign-off inside the caller's
// transaction. Re-marking an already verified inspection is a no-op.
func (s *service) MarkOwnerVerified(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, kind enums.InspectionType) error {
	repo := s.repo.WithTx(tx)
	updated, err := repo.MarkOwnerVerified(ctx, bookingID, kind, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify inspection")
	}
	if updated {
		return nil
	}
	if _, err := repo.Find(ctx, bookingID, kind); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodePrecondition, fmt.Sprintf("%s inspection has not been submitted", kind))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inspection")
	}
	return nil
}

func (s *service) List(ctx context.Context, bookingID, actorID uuid.UUID) ([]models.Inspection, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsParty(actorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this booking")
	}
	rows, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inspections")
	}
	return rows, nil
}

func (s *service) loadBooking(ctx context.Context, id uuid.UUID) (*models.BookingRequest, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
