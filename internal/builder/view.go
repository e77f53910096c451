package builder

import (
	"context"
	"strings"

	"github.com/hirewave/notify/internal/model"
)

// actorFallbackLabel is used when no identifying field of the actor is set.
const actorFallbackLabel = "Someone"

// View converts a record plus its (optionally nil) actor into the
// client-facing shape used for both pushes and history pages.
func (b *Builder) View(ctx context.Context, n model.Notification, actor *model.User) model.NotificationView {
	view := model.NotificationView{
		ID:        n.ID.String(),
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if view.Data == nil {
		view.Data = map[string]any{}
	}

	if actor != nil {
		av := &model.ActorView{
			ID:   actor.ID,
			Name: actorLabel(*actor),
		}
		if actor.Username != "" {
			av.Username = &actor.Username
		}
		if url := b.avatarURL(ctx, actor.AvatarKey); url != "" {
			av.AvatarURL = &url
		}
		view.Actor = av
	}

	return view
}

// actorLabel picks the display label by priority: display name, @username,
// email, phone, generic fallback.
func actorLabel(u model.User) string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return "@" + u.Username
	case u.Email != "":
		return u.Email
	case u.Phone != "":
		return u.Phone
	default:
		return actorFallbackLabel
	}
}

// avatarURL resolves a media key to an absolute URL. Keys that are already
// absolute pass through untouched; signer failures drop the avatar.
func (b *Builder) avatarURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	if b.signer == nil {
		return ""
	}

	url, err := b.signer.SignedURL(ctx, key)
	if err != nil {
		b.logger.Debug("avatar signing failed", "key", key, "error", err)
		return ""
	}
	return url
}
