package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rentalhub-backend/api/middleware"
	"github.com/angelmondragon/rentalhub-backend/api/responses"
	"github.com/angelmondragon/rentalhub-backend/api/validators"
	"github.com/angelmondragon/rentalhub-backend/internal/notifications"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/pagination"
)

const notificationIDParam = "notificationID"

type Notification struct {
	ID                uuid.UUID                  `json:"id"`
	Type              enums.NotificationType     `json:"type"`
	Priority          enums.NotificationPriority `json:"priority"`
	Title             string                     `json:"title"`
	Message           string                     `json:"message"`
	RelatedEntityType *string                    `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID                 `json:"related_entity_id,omitempty"`
	ReadAt            *time.Time                 `json:"read_at,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
}

func newNotification(n models.Notification) Notification {
	return Notification{
		ID:                n.ID,
		Type:              n.Type,
		Priority:          n.Priority,
		Title:             n.Title,
		Message:           n.Message,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		ReadAt:            n.ReadAt,
		CreatedAt:         n.CreatedAt,
	}
}

type notificationPage struct {
	Items       []Notification `json:"items"`
	Cursor      string         `json:"cursor,omitempty"`
	UnreadCount int64          `json:"unreadCount"`
}

// ListNotifications returns the caller's notifications, newest first.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unread_only")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), notifications.ListParams{
			UserID:     userID,
			Limit:      limit,
			Cursor:     strings.TrimSpace(r.URL.Query().Get("cursor")),
			UnreadOnly: unreadOnly,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]Notification, 0, len(result.Items))
		for _, n := range result.Items {
			items = append(items, newNotification(n))
		}
		responses.WriteSuccess(w, notificationPage{Items: items, Cursor: result.Cursor, UnreadCount: result.UnreadCount})
	}
}

// MarkNotificationRead marks a single notification as read for the caller.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notificationID, err := validators.ParseUUIDParam(r, notificationIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"read": true})
	}
}

// MarkAllNotificationsRead marks every unread notification for the caller.
func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"updated": updated})
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
