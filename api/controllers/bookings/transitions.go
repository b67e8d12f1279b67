package bookings

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rentalhub-backend/api/controllers/bookings/dto"
	"github.com/angelmondragon/rentalhub-backend/api/responses"
	"github.com/angelmondragon/rentalhub-backend/api/validators"
	internalbookings "github.com/angelmondragon/rentalhub-backend/internal/bookings"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
)

type transitionFunc func(ctx context.Context, id uuid.UUID, actor internalbookings.ActorRef) (internalbookings.Result, error)

// transition adapts a body-less state change to an HTTP handler.
func transition(svc internalbookings.Service, logg *logger.Logger, pick func(internalbookings.Service) transitionFunc) http.HandlerFunc {
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
		result, err := pick(svc)(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransition(result))
	}
}

func CompletePickupInspection(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s internalbookings.Service) transitionFunc { return s.CompletePickupInspection })
}

// StartRental serves both the renter/owner route and the admin manual start;
// the service decides who may act.
func StartRental(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s internalbookings.Service) transitionFunc { return s.StartRental })
}

func InitiateReturn(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s internalbookings.Service) transitionFunc { return s.InitiateReturn })
}

func CompleteReturnInspection(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s internalbookings.Service) transitionFunc { return s.CompleteReturnInspection })
}

func OwnerConfirm(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(s internalbookings.Service) transitionFunc { return s.OwnerConfirm })
}

// ReportDamage opens a damage claim and moves the booking into dispute.
func ReportDamage(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload dto.DamageReportRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := toDamageReport(payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.OwnerReportDamage(r.Context(), bookingID, actor, report)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransition(result))
	}
}

// Cancel cancels a booking before the rental starts. The body is optional.
func Cancel(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload dto.CancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Cancel(r.Context(), bookingID, actor, internalbookings.CancelPayload{
			Reason: validators.SanitizeString(payload.Reason, maxTextLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransition(result))
	}
}

// ResolveDispute closes the open damage claim and completes the booking.
// Mounted behind the admin role.
func ResolveDispute(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload dto.ResolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resolution, err := toDisputeResolution(payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ResolveDispute(r.Context(), bookingID, actor, resolution)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransition(result))
	}
}
