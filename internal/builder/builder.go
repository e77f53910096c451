// Package builder turns domain events into persisted, rendered notifications
// and hands them to the registry for live delivery.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hirewave/notify/internal/model"
)

// Store is the persistence surface the builder needs.
type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetTemplate(ctx context.Context, typ model.NotificationType) (*model.Template, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// MediaSigner resolves a stored media key to a fetchable URL.
type MediaSigner interface {
	SignedURL(ctx context.Context, key string) (string, error)
}

// Pusher delivers a rendered notification to a user's live connections.
type Pusher interface {
	Push(userID string, view model.NotificationView)
}

// Input describes one notification to create. Title and Body are the
// defaults used when no enabled template exists for the type.
type Input struct {
	RecipientID string
	ActorID     *string
	Type        model.NotificationType
	Title       string
	Body        *string
	Data        map[string]any
}

// Builder creates notifications.
type Builder struct {
	store  Store
	signer MediaSigner
	pusher Pusher
	logger *slog.Logger
}

// New creates a Builder. pusher may be nil when live delivery is not wired
// (tests, backfills).
func New(store Store, signer MediaSigner, pusher Pusher, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:  store,
		signer: signer,
		pusher: pusher,
		logger: logger,
	}
}

// Build renders, persists, and best-effort delivers one notification.
// Template problems never fail the build; a push miss never fails the build.
func (b *Builder) Build(ctx context.Context, in Input) (*model.Notification, error) {
	if in.RecipientID == "" {
		return nil, fmt.Errorf("recipient id is required")
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("unknown notification type %q", in.Type)
	}

	title, body := b.render(ctx, in)

	n := &model.Notification{
		RecipientID: in.RecipientID,
		ActorID:     in.ActorID,
		Type:        in.Type,
		Title:       title,
		Body:        body,
		Data:        in.Data,
	}

	if err := b.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	if b.pusher != nil {
		b.pusher.Push(n.RecipientID, b.View(ctx, *n, b.resolveActor(ctx, n.ActorID)))
	}

	return n, nil
}

// render applies the per-type template, falling back to the input defaults
// on any template problem.
func (b *Builder) render(ctx context.Context, in Input) (string, *string) {
	title := in.Title
	body := in.Body

	tpl, err := b.store.GetTemplate(ctx, in.Type)
	if err != nil || !tpl.Enabled {
		if err != nil {
			b.logger.Debug("template lookup failed, using defaults",
				"type", in.Type,
				"error", err,
			)
		}
		return title, body
	}

	if rendered := strings.TrimSpace(substitute(tpl.Title, in)); rendered != "" {
		title = rendered
	}
	if rendered := strings.TrimSpace(substitute(tpl.Body, in)); rendered != "" {
		body = &rendered
	}

	return title, body
}

// substitute replaces {title}, {body} and {type} tokens. Unknown tokens are
// left literally in place; substitution never fails.
func substitute(tpl string, in Input) string {
	body := ""
	if in.Body != nil {
		body = *in.Body
	}

	r := strings.NewReplacer(
		"{title}", in.Title,
		"{body}", body,
		"{type}", string(in.Type),
	)
	return r.Replace(tpl)
}

// resolveActor loads the actor row, tolerating lookup failures.
func (b *Builder) resolveActor(ctx context.Context, actorID *string) *model.User {
	if actorID == nil {
		return nil
	}

	actor, err := b.store.GetUser(ctx, *actorID)
	if err != nil {
		b.logger.Debug("actor lookup failed", "actor_id", *actorID, "error", err)
		return nil
	}
	return actor
}
