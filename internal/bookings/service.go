package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/internal/availability"
	"github.com/angelmondragon/rentalhub-backend/internal/ledger"
	"github.com/angelmondragon/rentalhub-backend/internal/notifications"
	"github.com/angelmondragon/rentalhub-backend/internal/pricing"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rentalhub-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InspectionVerifier is the slice of the inspection service the state
// machine depends on.
type InspectionVerifier interface {
	RequireRenterVerified(ctx context.Context, bookingID uuid.UUID, kind enums.InspectionType) error
	MarkOwnerVerified(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, kind enums.InspectionType) error
}

// Escrow moves booking funds after a transition commits.
type Escrow interface {
	PaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	Refund(ctx context.Context, input ledger.RefundInput) (*models.Payment, bool, error)
	Release(ctx context.Context, input ledger.ReleaseInput) (*models.Payment, bool, error)
}

// Notifier records user-facing notices. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, notice notifications.Notice)
}

// Service drives the booking lifecycle.
type Service interface {
	Request(ctx context.Context, actor ActorRef, input RequestInput) (*models.BookingRequest, pricing.Quote, error)
	Get(ctx context.Context, id uuid.UUID, actor ActorRef) (*models.BookingRequest, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Events(ctx context.Context, id uuid.UUID, actor ActorRef) ([]models.RentalEvent, error)

	CompletePayment(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error)
	CompletePickupInspection(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error)
	StartRental(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error)
	InitiateReturn(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error)
	CompleteReturnInspection(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error)
	OwnerConfirm(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error)
	OwnerReportDamage(ctx context.Context, id uuid.UUID, actor ActorRef, payload DamageReportPayload) (Result, error)
	ResolveDispute(ctx context.Context, id uuid.UUID, actor ActorRef, payload DisputeResolutionPayload) (Result, error)
	Cancel(ctx context.Context, id uuid.UUID, actor ActorRef, payload CancelPayload) (Result, error)

	StartDueRentals(ctx context.Context, limit int) (int, error)
	SettlementDeduction(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
}

// Result describes the outcome of one transition call.
type Result struct {
	Booking    *models.BookingRequest
	Transition enums.BookingTransition
	Outcome    string
	From       enums.BookingStatus
	To         enums.BookingStatus
}

// AlreadyApplied reports a no-op because the booking was already in the
// transition's target status.
func (r Result) AlreadyApplied() bool {
	return r.Outcome == metrics.OutcomeAlreadyApplied
}

// ListParams filters a user's bookings.
type ListParams struct {
	UserID uuid.UUID
	Side   Side
	Status enums.BookingStatus
	Limit  int
	Cursor string
}

// ListResult is one page of bookings.
type ListResult struct {
	Items  []models.BookingRequest `json:"items"`
	Cursor string                  `json:"cursor,omitempty"`
}

// ServiceParams wires the booking service.
type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Outbox       outbox.Emitter
	Inspections  InspectionVerifier
	Escrow       Escrow
	Notifier     Notifier
	Availability availability.Checker
	Metrics      *metrics.BookingMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outbox.Emitter
	inspections  InspectionVerifier
	escrow       Escrow
	notifier     Notifier
	availability availability.Checker
	metrics      *metrics.BookingMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewService validates dependencies and returns the booking state machine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Inspections == nil {
		return nil, fmt.Errorf("inspection verifier required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow ledger required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Availability == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:         params.Repo,
		tx:           params.Tx,
		outbox:       params.Outbox,
		inspections:  params.Inspections,
		escrow:       params.Escrow,
		notifier:     params.Notifier,
		availability: params.Availability,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
	}, nil
}

func (s *service) Request(ctx context.Context, actor ActorRef, input RequestInput) (*models.BookingRequest, pricing.Quote, error) {
	if actor.UserID == uuid.Nil {
		return nil, pricing.Quote{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "renter identity required")
	}
	if input.Insurance == "" {
		input.Insurance = enums.InsuranceNone
	}
	equipment, err := s.repo.FindEquipment(ctx, input.EquipmentID)
	if err != nil {
		return nil, pricing.Quote{}, mapLookupError(err, "equipment not found", "load equipment")
	}
	if equipment.OwnerID == actor.UserID {
		return nil, pricing.Quote{}, pkgerrors.New(pkgerrors.CodeForbidden, "owners cannot book their own equipment")
	}
	if !equipment.IsAvailable {
		return nil, pricing.Quote{}, pkgerrors.New(pkgerrors.CodeConflict, "equipment is not available")
	}

	start, end := day(input.Start), day(input.End)
	quote, err := pricing.Calculate(pricing.Input{
		DailyRate:         equipment.DailyRate,
		Start:             start,
		End:               end,
		Insurance:         input.Insurance,
		DepositType:       equipment.DepositType,
		DepositAmount:     equipment.DepositAmount,
		DepositPercentage: equipment.DepositPercentage,
	})
	if err != nil {
		return nil, pricing.Quote{}, err
	}

	conflict, err := s.availability.HasConflict(ctx, availability.Range{EquipmentID: equipment.ID, Start: start, End: end})
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	if conflict {
		return nil, pricing.Quote{}, pkgerrors.New(pkgerrors.CodeConflict, "equipment is already booked for these dates")
	}

	booking := &models.BookingRequest{
		EquipmentID:         equipment.ID,
		RenterID:            actor.UserID,
		OwnerID:             equipment.OwnerID,
		StartDate:           datatypes.Date(start),
		EndDate:             datatypes.Date(end),
		Status:              enums.BookingStatusPending,
		TotalAmount:         quote.Total,
		InsuranceType:       quote.Insurance,
		InsuranceCost:       quote.InsuranceCost,
		DamageDepositAmount: quote.Deposit,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, pricing.Quote{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
	}

	s.notify(ctx, booking, booking.OwnerID, enums.NotificationTypeBookingUpdate, enums.NotificationPriorityNormal,
		"New booking request", "A renter requested your equipment for "+dateRange(booking)+".")
	return booking, quote, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor ActorRef) (*models.BookingRequest, error) {
	booking, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, booking) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this booking")
	}
	return booking, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	var cursor *pagination.Cursor
	if strings.TrimSpace(params.Cursor) != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}
	rows, next, err := s.repo.ListForUser(ctx, listParams{
		UserID: params.UserID,
		Side:   params.Side,
		Status: params.Status,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	if rows == nil {
		rows = []models.BookingRequest{}
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Events(ctx context.Context, id uuid.UUID, actor ActorRef) ([]models.RentalEvent, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	events, err := s.repo.ListRentalEvents(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rental events")
	}
	return events, nil
}

func (s *service) CompletePayment(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error) {
	return s.apply(ctx, step{
		transition: enums.TransitionCompletePayment,
		bookingID:  id,
		actor:      actor,
		precheck: func(ctx context.Context, booking *models.BookingRequest) error {
			payment, err := s.escrow.PaymentForBooking(ctx, booking.ID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return err
			}
			if payment == nil || payment.PaymentStatus != enums.PaymentStatusSucceeded {
				return precondition("payment has not succeeded", "payment_succeeded")
			}
			return nil
		},
		after: func(ctx context.Context, booking *models.BookingRequest) {
			s.notify(ctx, booking, booking.OwnerID, enums.NotificationTypePaymentUpdate, enums.NotificationPriorityNormal,
				"Booking paid", "Payment for the booking on "+dateRange(booking)+" went through.")
		},
	})
}

func (s *service) CompletePickupInspection(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error) {
	return s.apply(ctx, step{
		transition: enums.TransitionCompletePickupInspection,
		bookingID:  id,
		actor:      actor,
		precheck: func(ctx context.Context, booking *models.BookingRequest) error {
			return s.inspections.RequireRenterVerified(ctx, booking.ID, enums.InspectionTypePickup)
		},
		after: func(ctx context.Context, booking *models.BookingRequest) {
			s.notify(ctx, booking, booking.OwnerID, enums.NotificationTypeInspectionRequired, enums.NotificationPriorityNormal,
				"Pickup inspection done", "The renter verified the equipment condition at pickup.")
		},
	})
}

func (s *service) StartRental(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error) {
	return s.apply(ctx, step{
		transition: enums.TransitionStartRental,
		bookingID:  id,
		actor:      actor,
		precheck: func(ctx context.Context, booking *models.BookingRequest) error {
			today := day(s.now())
			if today.Before(booking.Start()) {
				return precondition("rental start date has not been reached", "start_date_reached").
					WithDetails(map[string]any{
						"requirement": "start_date_reached",
						"start_date":  booking.Start().Format(time.DateOnly),
						"today":       today.Format(time.DateOnly),
					})
			}
			return nil
		},
		updates: func(now time.Time) map[string]any {
			return map[string]any{"activated_at": now}
		},
		inTx: func(ctx context.Context, tx *gorm.DB, booking *models.BookingRequest, now time.Time) error {
			return s.rentalEvent(ctx, tx, booking.ID, enums.RentalEventStarted, actor, nil)
		},
	})
}

func (s *service) InitiateReturn(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error) {
	return s.apply(ctx, step{
		transition: enums.TransitionInitiateReturn,
		bookingID:  id,
		actor:      actor,
		inTx: func(ctx context.Context, tx *gorm.DB, booking *models.BookingRequest, now time.Time) error {
			return s.rentalEvent(ctx, tx, booking.ID, enums.RentalEventReturnInitiated, actor, nil)
		},
	})
}

func (s *service) CompleteReturnInspection(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error) {
	return s.apply(ctx, step{
		transition: enums.TransitionCompleteReturnInspection,
		bookingID:  id,
		actor:      actor,
		precheck: func(ctx context.Context, booking *models.BookingRequest) error {
			return s.inspections.RequireRenterVerified(ctx, booking.ID, enums.InspectionTypeReturn)
		},
		after: func(ctx context.Context, booking *models.BookingRequest) {
			s.notify(ctx, booking, booking.OwnerID, enums.NotificationTypeReturnReview, enums.NotificationPriorityHigh,
				"Return ready for review", "The renter returned your equipment. Confirm its condition or report damage.")
		},
	})
}

func (s *service) OwnerConfirm(ctx context.Context, id uuid.UUID, actor ActorRef) (Result, error) {
	return s.apply(ctx, step{
		transition: enums.TransitionOwnerConfirm,
		bookingID:  id,
		actor:      actor,
		updates: func(now time.Time) map[string]any {
			return map[string]any{"completed_at": now}
		},
		inTx: func(ctx context.Context, tx *gorm.DB, booking *models.BookingRequest, now time.Time) error {
			return s.inspections.MarkOwnerVerified(ctx, tx, booking.ID, enums.InspectionTypeReturn)
		},
		reachedBy: func(ctx context.Context, repo Repository, booking *models.BookingRequest) (bool, error) {
			disputed, err := hadDamageClaim(ctx, repo, booking.ID)
			return !disputed, err
		},
		after: func(ctx context.Context, booking *models.BookingRequest) {
			s.release(ctx, booking, decimal.Zero, actor)
			s.notify(ctx, booking, booking.RenterID, enums.NotificationTypeBookingUpdate, enums.NotificationPriorityNormal,
				"Rental completed", "The owner confirmed the return. Your deposit is on its way back.")
		},
	})
}

func (s *service) OwnerReportDamage(ctx context.Context, id uuid.UUID, actor ActorRef, payload DamageReportPayload) (Result, error) {
	return s.apply(ctx, step{
		transition: enums.TransitionOwnerReportDamage,
		bookingID:  id,
		actor:      actor,
		precheck: func(ctx context.Context, booking *models.BookingRequest) error {
			return payload.validate()
		},
		inTx: func(ctx context.Context, tx *gorm.DB, booking *models.BookingRequest, now time.Time) error {
			claim := &models.DamageClaim{
				BookingID:         booking.ID,
				FiledBy:           actor.UserID,
				DamageDescription: strings.TrimSpace(payload.Description),
				Status:            enums.DamageClaimStatusPending,
			}
			if payload.EstimatedCost != nil {
				claim.EstimatedCost = decimal.NewNullDecimal(payload.EstimatedCost.Round(2))
			}
			if err := s.repo.WithTx(tx).CreateDamageClaim(ctx, claim); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create damage claim")
			}
			return s.rentalEvent(ctx, tx, booking.ID, enums.RentalEventDamageReported, actor, map[string]any{
				"claim_id":   claim.ID,
				"photo_urls": payload.PhotoURLs,
			})
		},
		after: func(ctx context.Context, booking *models.BookingRequest) {
			s.notify(ctx, booking, booking.RenterID, enums.NotificationTypeDamageReported, enums.NotificationPriorityCritical,
				"Damage reported", "The owner reported damage on your rental. An admin will review the claim.")
		},
	})
}

func (s *service) ResolveDispute(ctx context.Context, id uuid.UUID, actor ActorRef, payload DisputeResolutionPayload) (Result, error) {
	deduction := payload.DeductionAmount.Round(2)
	var claim *models.DamageClaim
	return s.apply(ctx, step{
		transition: enums.TransitionResolveDispute,
		bookingID:  id,
		actor:      actor,
		precheck: func(ctx context.Context, booking *models.BookingRequest) error {
			if err := payload.validate(); err != nil {
				return err
			}
			open, err := s.repo.FindOpenDamageClaim(ctx, booking.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return precondition("no open damage claim", "open_damage_claim")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load damage claim")
			}
			claim = open
			return nil
		},
		updates: func(now time.Time) map[string]any {
			return map[string]any{"completed_at": now}
		},
		inTx: func(ctx context.Context, tx *gorm.DB, booking *models.BookingRequest, now time.Time) error {
			resolution, err := json.Marshal(map[string]any{
				"outcome":          payload.Outcome,
				"notes":            payload.Notes,
				"deduction_amount": deduction,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode resolution")
			}
			ok, err := s.repo.WithTx(tx).ResolveDamageClaim(ctx, claim.ID, map[string]any{
				"resolution":       datatypes.JSON(resolution),
				"deduction_amount": decimal.NewNullDecimal(deduction),
				"resolved_by":      actor.idPtr(),
				"resolved_at":      now,
				"updated_at":       now,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve damage claim")
			}
			if !ok {
				return precondition("damage claim is no longer open", "open_damage_claim")
			}
			return nil
		},
		reachedBy: func(ctx context.Context, repo Repository, booking *models.BookingRequest) (bool, error) {
			return hadDamageClaim(ctx, repo, booking.ID)
		},
		after: func(ctx context.Context, booking *models.BookingRequest) {
			s.release(ctx, booking, deduction, actor)
			message := "The dispute on your rental was resolved."
			if deduction.IsPositive() {
				message = "The dispute was resolved with a deposit deduction of " + deduction.StringFixed(2) + "."
			}
			for _, userID := range []uuid.UUID{booking.RenterID, booking.OwnerID} {
				s.notify(ctx, booking, userID, enums.NotificationTypeDisputeResolved, enums.NotificationPriorityHigh,
					"Dispute resolved", message)
			}
		},
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, actor ActorRef, payload CancelPayload) (Result, error) {
	reason := strings.TrimSpace(payload.Reason)
	return s.apply(ctx, step{
		transition: enums.TransitionCancel,
		bookingID:  id,
		actor:      actor,
		updates: func(now time.Time) map[string]any {
			updates := map[string]any{
				"cancelled_at": now,
				"cancelled_by": actor.idPtr(),
			}
			if reason != "" {
				updates["cancellation_reason"] = reason
			}
			return updates
		},
		after: func(ctx context.Context, booking *models.BookingRequest) {
			s.refundIfPaid(ctx, booking, reason, actor)
			s.notify(ctx, booking, booking.Counterparty(actor.UserID), enums.NotificationTypeBookingCancelled, enums.NotificationPriorityHigh,
				"Booking cancelled", "The booking for "+dateRange(booking)+" was cancelled.")
		},
	})
}

// StartDueRentals activates every awaiting booking whose start date has
// arrived. It returns how many bookings this call started.
func (s *service) StartDueRentals(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDueForStart(ctx, day(s.now()), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due rentals")
	}
	started := 0
	var errs error
	for _, booking := range due {
		result, err := s.StartRental(ctx, booking.ID, SystemActor)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("start booking %s: %w", booking.ID, err))
			continue
		}
		if !result.AlreadyApplied() {
			started++
		}
	}
	return started, errs
}

// SettlementDeduction returns the deposit deduction decided for a booking's
// damage claim, or zero when no claim was resolved with one.
func (s *service) SettlementDeduction(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	claim, err := s.repo.LatestDamageClaim(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load damage claim")
	}
	if claim.Status != enums.DamageClaimStatusResolved || !claim.DeductionAmount.Valid {
		return decimal.Zero, nil
	}
	return claim.DeductionAmount.Decimal, nil
}

type step struct {
	transition enums.BookingTransition
	bookingID  uuid.UUID
	actor      ActorRef
	precheck   func(ctx context.Context, booking *models.BookingRequest) error
	updates    func(now time.Time) map[string]any
	inTx       func(ctx context.Context, tx *gorm.DB, booking *models.BookingRequest, now time.Time) error
	after      func(ctx context.Context, booking *models.BookingRequest)
	// reachedBy tells whether a booking already at the target status got
	// there through this transition. Nil accepts any arrival.
	reachedBy func(ctx context.Context, repo Repository, booking *models.BookingRequest) (bool, error)
}

func (st step) reached(ctx context.Context, repo Repository, booking *models.BookingRequest) (bool, error) {
	if st.reachedBy == nil {
		return true, nil
	}
	return st.reachedBy(ctx, repo, booking)
}

func (s *service) apply(ctx context.Context, st step) (result Result, err error) {
	r, ok := rules[st.transition]
	if !ok {
		return Result{}, pkgerrors.New(pkgerrors.CodeInternal, "unknown transition")
	}
	ctx = s.logg.WithFields(s.logg.WithBookingID(ctx, st.bookingID.String()), map[string]any{
		"transition": st.transition,
		"actor_role": st.actor.Role,
	})
	defer func() {
		s.metrics.ObserveTransition(string(st.transition), outcomeFor(result, err))
	}()

	booking, err := s.load(ctx, s.repo, st.bookingID)
	if err != nil {
		return Result{}, err
	}
	if err := r.authorize(st.actor, booking); err != nil {
		return Result{}, err
	}
	if booking.Status == r.to {
		reached, err := st.reached(ctx, s.repo, booking)
		if err != nil {
			return Result{}, err
		}
		if !reached {
			return Result{}, invalidTransition(st.transition, booking.Status, r)
		}
		return s.alreadyApplied(ctx, st.transition, booking), nil
	}
	if !r.allows(booking.Status) {
		return Result{}, invalidTransition(st.transition, booking.Status, r)
	}
	if st.precheck != nil {
		if err := st.precheck(ctx, booking); err != nil {
			return Result{}, err
		}
	}

	now := s.now().UTC()
	from := booking.Status
	var (
		updated *models.BookingRequest
		applied bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{"updated_at": now}
		if st.updates != nil {
			for column, value := range st.updates(now) {
				updates[column] = value
			}
		}
		ok, err := repo.TransitionStatus(ctx, booking.ID, r.from, r.to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
		}
		if !ok {
			current, err := s.load(ctx, repo, booking.ID)
			if err != nil {
				return err
			}
			if current.Status == r.to {
				reached, err := st.reached(ctx, repo, current)
				if err != nil {
					return err
				}
				if !reached {
					return invalidTransition(st.transition, current.Status, r)
				}
				updated = current
				return nil
			}
			return invalidTransition(st.transition, current.Status, r)
		}
		applied = true

		if st.inTx != nil {
			if err := st.inTx(ctx, tx, booking, now); err != nil {
				return err
			}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingStatusChanged,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         st.actor.outboxRef(),
			OccurredAt:    now,
			Data: payloads.BookingStatusChangedEvent{
				BookingID:   booking.ID,
				EquipmentID: booking.EquipmentID,
				RenterID:    booking.RenterID,
				OwnerID:     booking.OwnerID,
				Transition:  st.transition,
				From:        from,
				To:          r.to,
				ChangedAt:   now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit booking status event")
		}
		updated, err = s.load(ctx, repo, booking.ID)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return s.alreadyApplied(ctx, st.transition, updated), nil
	}

	s.logg.Info(ctx, "booking transition applied")
	if st.after != nil {
		st.after(ctx, updated)
	}
	return Result{
		Booking:    updated,
		Transition: st.transition,
		Outcome:    metrics.OutcomeApplied,
		From:       from,
		To:         r.to,
	}, nil
}

// hadDamageClaim separates bookings completed through a dispute from those
// the owner confirmed directly; both end in completed.
func hadDamageClaim(ctx context.Context, repo Repository, bookingID uuid.UUID) (bool, error) {
	_, err := repo.LatestDamageClaim(ctx, bookingID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load damage claim")
	}
}

func (s *service) alreadyApplied(ctx context.Context, transition enums.BookingTransition, booking *models.BookingRequest) Result {
	s.logg.Info(ctx, "booking transition already applied")
	return Result{
		Booking:    booking,
		Transition: transition,
		Outcome:    metrics.OutcomeAlreadyApplied,
		From:       booking.Status,
		To:         booking.Status,
	}
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.BookingRequest, error) {
	booking, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "booking not found", "load booking")
	}
	return booking, nil
}

func (s *service) rentalEvent(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, eventType enums.RentalEventType, actor ActorRef, metadata map[string]any) error {
	event := &models.RentalEvent{
		BookingID: bookingID,
		EventType: eventType,
		ActorID:   actor.idPtr(),
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode rental event metadata")
		}
		event.Metadata = datatypes.JSON(raw)
	}
	if err := s.repo.WithTx(tx).CreateRentalEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record rental event")
	}
	return nil
}

func (s *service) release(ctx context.Context, booking *models.BookingRequest, deduction decimal.Decimal, actor ActorRef) {
	if _, _, err := s.escrow.Release(ctx, ledger.ReleaseInput{
		BookingID:       booking.ID,
		DeductionAmount: deduction,
		ActorID:         actor.idPtr(),
	}); err != nil {
		s.logg.Error(ctx, "escrow release failed", err)
	}
}

func (s *service) refundIfPaid(ctx context.Context, booking *models.BookingRequest, reason string, actor ActorRef) {
	payment, err := s.escrow.PaymentForBooking(ctx, booking.ID)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Error(ctx, "load payment for refund failed", err)
		}
		return
	}
	if payment.PaymentStatus != enums.PaymentStatusSucceeded {
		return
	}
	if reason == "" {
		reason = ledger.CancellationRefundReason
	}
	if _, _, err := s.escrow.Refund(ctx, ledger.RefundInput{
		BookingID: booking.ID,
		Reason:    reason,
		ActorID:   actor.idPtr(),
	}); err != nil {
		s.logg.Error(ctx, "cancellation refund failed", err)
	}
}

func (s *service) notify(ctx context.Context, booking *models.BookingRequest, userID uuid.UUID, kind enums.NotificationType, priority enums.NotificationPriority, title, message string) {
	id := booking.ID
	s.notifier.Notify(ctx, notifications.Notice{
		UserID:            userID,
		Type:              kind,
		Priority:          priority,
		Title:             title,
		Message:           message,
		RelatedEntityType: "booking_request",
		RelatedEntityID:   &id,
	})
}

func canView(actor ActorRef, booking *models.BookingRequest) bool {
	return actor.isSystem() || actor.isAdmin() || booking.IsParty(actor.UserID)
}

func precondition(message, requirement string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodePrecondition, message).
		WithDetails(map[string]any{"requirement": requirement})
}

func outcomeFor(result Result, err error) string {
	if err == nil {
		return result.Outcome
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		return metrics.OutcomeError
	}
	return metrics.OutcomeRejected
}

func mapLookupError(err error, notFound, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateRange(booking *models.BookingRequest) string {
	return booking.Start().Format(time.DateOnly) + " to " + booking.End().Format(time.DateOnly)
}
