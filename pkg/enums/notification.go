package enums

import "slices"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeBookingUpdate      NotificationType = "booking_update"
	NotificationTypePaymentUpdate      NotificationType = "payment_update"
	NotificationTypeInspectionRequired NotificationType = "inspection_required"
	NotificationTypeReturnReview       NotificationType = "return_review"
	NotificationTypeDamageReported     NotificationType = "damage_reported"
	NotificationTypeDisputeResolved    NotificationType = "dispute_resolved"
	NotificationTypeBookingCancelled   NotificationType = "booking_cancelled"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeBookingUpdate,
	NotificationTypePaymentUpdate,
	NotificationTypeInspectionRequired,
	NotificationTypeReturnReview,
	NotificationTypeDamageReported,
	NotificationTypeDisputeResolved,
	NotificationTypeBookingCancelled,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parseEnum(validNotificationTypes, value, "notification type")
}

// NotificationPriority orders how urgently a notification should surface.
type NotificationPriority string

const (
	NotificationPriorityLow      NotificationPriority = "low"
	NotificationPriorityNormal   NotificationPriority = "normal"
	NotificationPriorityHigh     NotificationPriority = "high"
	NotificationPriorityCritical NotificationPriority = "critical"
)

// IsValid checks whether the priority is one of the known levels.
func (p NotificationPriority) IsValid() bool {
	switch p {
	case NotificationPriorityLow, NotificationPriorityNormal, NotificationPriorityHigh, NotificationPriorityCritical:
		return true
	default:
		return false
	}
}

// EmailWorthy reports whether the priority warrants an email on top of the
// in-app row.
func (p NotificationPriority) EmailWorthy() bool {
	return p == NotificationPriorityHigh || p == NotificationPriorityCritical
}
