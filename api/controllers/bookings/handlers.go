package bookings

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/rentalhub-backend/api/controllers/bookings/dto"
	"github.com/angelmondragon/rentalhub-backend/api/middleware"
	"github.com/angelmondragon/rentalhub-backend/api/responses"
	"github.com/angelmondragon/rentalhub-backend/api/validators"
	internalbookings "github.com/angelmondragon/rentalhub-backend/internal/bookings"
	"github.com/angelmondragon/rentalhub-backend/internal/inspections"
	"github.com/angelmondragon/rentalhub-backend/internal/payments"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/pagination"
)

const bookingIDParam = "bookingID"

// Request creates a pending booking for the caller as renter.
func Request(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload dto.RequestBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := toRequestInput(payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, quote, err := svc.Request(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.RequestBookingResponse{
			Booking: newBooking(booking),
			Quote:   quote,
		})
	}
}

// List returns the caller's bookings, optionally narrowed to one side.
func List(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internalbookings.ListParams{
			UserID: actor.UserID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		switch side := internalbookings.Side(strings.TrimSpace(r.URL.Query().Get("side"))); side {
		case internalbookings.SideAny, internalbookings.SideRenter, internalbookings.SideOwner:
			params.Side = side
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "side must be renter or owner"))
			return
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseBookingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = status
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBookingList(result))
	}
}

// Detail returns a booking to either party or an admin.
func Detail(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		actor, bookingID, err := actorAndBooking(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.Get(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBooking(booking))
	}
}

// Events returns the booking's rental activity log.
func Events(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		actor, bookingID, err := actorAndBooking(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Events(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRentalEvents(rows))
	}
}

// CreatePaymentIntent returns a payable intent for the renter, reusing one
// that is still open.
func CreatePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		actor, bookingID, err := actorAndBooking(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload dto.PaymentIntentRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		clientTotal, err := parseClientTotal(payload.ClientTotal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrReuseIntent(r.Context(), payments.IntentInput{
			BookingID:   bookingID,
			ActorID:     actor.UserID,
			ClientTotal: clientTotal,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// SubmitInspection records the renter's pickup or return sign-off.
func SubmitInspection(svc inspections.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inspection service unavailable"))
			return
		}
		actor, bookingID, err := actorAndBooking(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload dto.SubmitInspectionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := toSubmitInput(bookingID, actor.UserID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inspection, err := svc.Submit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newInspection(inspection))
	}
}

// ListInspections returns the booking's inspections to either party.
func ListInspections(svc inspections.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inspection service unavailable"))
			return
		}
		actor, bookingID, err := actorAndBooking(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), bookingID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInspections(rows))
	}
}

func actorFromRequest(r *http.Request) (internalbookings.ActorRef, error) {
	return actorFromContext(r.Context())
}

func actorFromContext(ctx context.Context) (internalbookings.ActorRef, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return internalbookings.ActorRef{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return internalbookings.ActorRef{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return internalbookings.ActorRef{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return internalbookings.ActorRef{UserID: userID, Role: role}, nil
}

func actorAndBooking(r *http.Request) (internalbookings.ActorRef, uuid.UUID, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return actor, uuid.Nil, err
	}
	bookingID, err := validators.ParseUUIDParam(r, bookingIDParam)
	if err != nil {
		return actor, uuid.Nil, err
	}
	return actor, bookingID, nil
}
