package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Notification Records
// -----------------------------------------------------------------------------

// NotificationType is the closed set of notification categories.
type NotificationType string

const (
	TypeOrderEvent   NotificationType = "order_event"   // order created/accepted/completed
	TypeMessageEvent NotificationType = "message_event" // new chat message
	TypeReviewEvent  NotificationType = "review_event"  // review left on a listing
	TypeReportEvent  NotificationType = "report_event"  // report filed or resolved
	TypeSystemEvent  NotificationType = "system_event"  // platform announcements
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeOrderEvent, TypeMessageEvent, TypeReviewEvent, TypeReportEvent, TypeSystemEvent:
		return true
	}
	return false
}

// Notification is a persisted notification record. Created once by the
// builder; only its read flag ever changes afterwards.
type Notification struct {
	ID          uuid.UUID        // Primary key
	RecipientID string           // Target user
	ActorID     *string          // User who triggered the notification, if any
	Type        NotificationType // Category
	Title       string           // Rendered title
	Body        *string          // Rendered body, optional
	Data        map[string]any   // Opaque structured payload
	IsRead      bool             // Read flag
	CreatedAt   time.Time        // Server-assigned creation time
}

// User is the subset of a platform account the notification service reads:
// enough to resolve an actor's display label and avatar.
type User struct {
	ID          string
	DisplayName string
	Username    string
	Email       string
	Phone       string
	AvatarKey   string // media key or absolute URL; empty when unset
	Status      string // "active", "suspended", "deleted"
}

// Template is an admin-configured per-type message template. Title and body
// support {title}, {body} and {type} token substitution.
type Template struct {
	Type    NotificationType
	Title   string
	Body    string
	Enabled bool
}

// -----------------------------------------------------------------------------
// Wire Types
// -----------------------------------------------------------------------------

// ActorView is the resolved actor embedded in a NotificationView.
type ActorView struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatarUrl"`
}

// NotificationView is the client-facing shape of a notification, used both
// for live pushes and paginated history responses.
type NotificationView struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      *string          `json:"body"`
	Data      map[string]any   `json:"data"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
	Actor     *ActorView       `json:"actor"`
}

// PushFrameType is the only frame type currently sent over the live socket.
const PushFrameType = "notification"

// PushFrame is the envelope written to every live connection on fanout.
type PushFrame struct {
	Type         string           `json:"type"`
	Notification NotificationView `json:"notification"`
}

// FeedPage is one page of the history fetch response. UnreadCount is the
// server-authoritative value as of this response.
type FeedPage struct {
	Notifications []NotificationView `json:"notifications"`
	NextCursor    *string            `json:"nextCursor"`
	UnreadCount   int                `json:"unreadCount"`
}

// MarkReadRequest marks either a specific id set or everything read.
type MarkReadRequest struct {
	IDs []string `json:"ids,omitempty"`
	All bool     `json:"all,omitempty"`
}

// MarkReadResponse carries the authoritative unread count after the update.
type MarkReadResponse struct {
	UnreadCount int `json:"unreadCount"`
}
