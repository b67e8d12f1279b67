package bookings

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

var lifecycleStatuses = []enums.BookingStatus{
	enums.BookingStatusPending,
	enums.BookingStatusPaid,
	enums.BookingStatusAwaitingPickupInspection,
	enums.BookingStatusAwaitingStartDate,
	enums.BookingStatusActive,
	enums.BookingStatusAwaitingReturnInspection,
	enums.BookingStatusPendingOwnerReview,
	enums.BookingStatusDisputed,
	enums.BookingStatusCompleted,
	enums.BookingStatusCancelled,
}

func TestRulesFollowLifecycleGraph(t *testing.T) {
	for transition, r := range rules {
		require.True(t, transition.IsValid(), transition)
		require.NotEmpty(t, r.from, transition)
		require.NotZero(t, r.actors, transition)
		for _, from := range r.from {
			require.True(t, from.CanTransitionTo(r.to), "%s: %s -> %s is not a lifecycle edge", transition, from, r.to)
			require.True(t, r.allows(from), "%s should allow %s", transition, from)
		}
	}
}

func TestEveryLifecycleEdgeHasARule(t *testing.T) {
	for _, from := range lifecycleStatuses {
		for _, to := range lifecycleStatuses {
			if !from.CanTransitionTo(to) {
				continue
			}
			covered := false
			for _, r := range rules {
				if r.to == to && r.allows(from) {
					covered = true
					break
				}
			}
			require.True(t, covered, "edge %s -> %s has no transition", from, to)
		}
	}
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	for transition, r := range rules {
		for _, status := range lifecycleStatuses {
			if status.IsTerminal() {
				require.False(t, r.allows(status), "%s must not leave %s", transition, status)
			}
		}
	}
}

func TestRequiredRoleNamesAllowedActors(t *testing.T) {
	require.Equal(t, []string{"renter"}, rules[enums.TransitionCompletePickupInspection].requiredRole())
	require.Equal(t, []string{"renter", "owner"}, rules[enums.TransitionCancel].requiredRole())
	require.Equal(t, []string{string(enums.UserRoleAdmin), string(enums.UserRoleSystem)}, rules[enums.TransitionResolveDispute].requiredRole())
}
