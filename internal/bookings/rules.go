package bookings

import (
	"slices"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

type actorPolicy uint8

const (
	allowRenter actorPolicy = 1 << iota
	allowOwner
	allowAdmin
	allowSystem
)

type rule struct {
	from   []enums.BookingStatus
	to     enums.BookingStatus
	actors actorPolicy
}

var rules = map[enums.BookingTransition]rule{
	enums.TransitionCompletePayment: {
		from:   []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusPaid},
		to:     enums.BookingStatusAwaitingPickupInspection,
		actors: allowSystem,
	},
	enums.TransitionCompletePickupInspection: {
		from:   []enums.BookingStatus{enums.BookingStatusAwaitingPickupInspection},
		to:     enums.BookingStatusAwaitingStartDate,
		actors: allowRenter,
	},
	enums.TransitionStartRental: {
		from:   []enums.BookingStatus{enums.BookingStatusAwaitingStartDate},
		to:     enums.BookingStatusActive,
		actors: allowRenter | allowOwner | allowAdmin | allowSystem,
	},
	enums.TransitionInitiateReturn: {
		from:   []enums.BookingStatus{enums.BookingStatusActive},
		to:     enums.BookingStatusAwaitingReturnInspection,
		actors: allowRenter,
	},
	enums.TransitionCompleteReturnInspection: {
		from:   []enums.BookingStatus{enums.BookingStatusAwaitingReturnInspection},
		to:     enums.BookingStatusPendingOwnerReview,
		actors: allowRenter,
	},
	enums.TransitionOwnerConfirm: {
		from:   []enums.BookingStatus{enums.BookingStatusPendingOwnerReview},
		to:     enums.BookingStatusCompleted,
		actors: allowOwner,
	},
	enums.TransitionOwnerReportDamage: {
		from:   []enums.BookingStatus{enums.BookingStatusPendingOwnerReview},
		to:     enums.BookingStatusDisputed,
		actors: allowOwner,
	},
	enums.TransitionResolveDispute: {
		from:   []enums.BookingStatus{enums.BookingStatusDisputed},
		to:     enums.BookingStatusCompleted,
		actors: allowAdmin | allowSystem,
	},
	enums.TransitionCancel: {
		from: []enums.BookingStatus{
			enums.BookingStatusPending,
			enums.BookingStatusPaid,
			enums.BookingStatusAwaitingPickupInspection,
			enums.BookingStatusAwaitingStartDate,
		},
		to:     enums.BookingStatusCancelled,
		actors: allowRenter | allowOwner,
	},
}

// allows requires the status to be a declared source and the move to be an
// edge of the lifecycle graph.
func (r rule) allows(status enums.BookingStatus) bool {
	return slices.Contains(r.from, status) && status.CanTransitionTo(r.to)
}

// authorize checks the actor against the rule before anything else about
// the booking is inspected.
func (r rule) authorize(actor ActorRef, booking *models.BookingRequest) error {
	switch {
	case actor.isSystem():
		if r.actors&allowSystem != 0 {
			return nil
		}
	case actor.isAdmin() && r.actors&allowAdmin != 0:
		return nil
	case actor.UserID == booking.RenterID && r.actors&allowRenter != 0:
		return nil
	case actor.UserID == booking.OwnerID && r.actors&allowOwner != 0:
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "actor is not allowed to perform this transition").
		WithDetails(map[string]any{"required_role": r.requiredRole()})
}

func (r rule) requiredRole() []string {
	var roles []string
	if r.actors&allowRenter != 0 {
		roles = append(roles, "renter")
	}
	if r.actors&allowOwner != 0 {
		roles = append(roles, "owner")
	}
	if r.actors&allowAdmin != 0 {
		roles = append(roles, string(enums.UserRoleAdmin))
	}
	if r.actors&allowSystem != 0 {
		roles = append(roles, string(enums.UserRoleSystem))
	}
	return roles
}

func invalidTransition(transition enums.BookingTransition, current enums.BookingStatus, r rule) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "booking is not in a state that allows "+string(transition)).
		WithDetails(map[string]any{
			"current_status":       current,
			"attempted_transition": transition,
			"allowed_from":         r.from,
		})
}
