// Package feed reconciles paginated history fetches with live pushes into a
// single duplicate-free, unread-counted notification view.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hirewave/notify/internal/model"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 20

// Fetcher is the server round-trip surface the feed needs.
type Fetcher interface {
	FetchPage(ctx context.Context, cursor *string, limit int) (*model.FeedPage, error)
	MarkRead(ctx context.Context, ids []string) (int, error)
	MarkAllRead(ctx context.Context) (int, error)
}

// Feed holds the merged client-side notification state.
//
// The unread counter is a best-effort local mirror: pushes and optimistic
// mark-read adjust it immediately, and every server round trip overwrites it
// with the authoritative value, discarding any transient drift.
type Feed struct {
	fetcher  Fetcher
	logger   *slog.Logger
	pageSize int

	mu         sync.Mutex
	items      []model.NotificationView
	present    map[string]struct{}
	unread     int
	nextCursor *string
	loaded     bool
	loading    bool
	hasMore    bool
}

// New creates an empty feed.
func New(fetcher Fetcher, pageSize int, logger *slog.Logger) *Feed {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		fetcher:  fetcher,
		logger:   logger,
		pageSize: pageSize,
		present:  make(map[string]struct{}),
		hasMore:  true,
	}
}

// LoadMore fetches the next history page and merges it. The first call
// fetches from the top. Returns nil without fetching when a load is already
// in flight or no more pages remain.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	if f.loading || (f.loaded && !f.hasMore) {
		f.mu.Unlock()
		return nil
	}
	f.loading = true
	cursor := f.nextCursor
	f.mu.Unlock()

	page, err := f.fetcher.FetchPage(ctx, cursor, f.pageSize)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false

	if err != nil {
		// Feed state stays untouched; the caller retries.
		return fmt.Errorf("fetch page: %w", err)
	}

	f.applyPageLocked(page, true)
	f.loaded = true
	return nil
}

// Refresh re-fetches the first page to re-sync the authoritative unread
// count and pick up anything missed across a reconnect. Pagination position
// is left alone.
func (f *Feed) Refresh(ctx context.Context) error {
	page, err := f.fetcher.FetchPage(ctx, nil, f.pageSize)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyPageLocked(page, false)
	f.loaded = true
	return nil
}

// applyPageLocked merges a fetched page: already-present ids are filtered
// out, the remainder is appended in page order. Applying the same page
// twice is a no-op. The server unread count always wins.
func (f *Feed) applyPageLocked(page *model.FeedPage, advanceCursor bool) {
	for _, n := range page.Notifications {
		if _, ok := f.present[n.ID]; ok {
			continue
		}
		f.present[n.ID] = struct{}{}
		f.items = append(f.items, n)
	}

	f.unread = page.UnreadCount
	if advanceCursor {
		f.nextCursor = page.NextCursor
		f.hasMore = page.NextCursor != nil
	}
}

// ApplyPush merges one live-pushed notification. A known id is replaced in
// place, keeping its position and adjusting the counter by the observed
// read-state transition; a new id is prepended.
func (f *Feed) ApplyPush(view model.NotificationView) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.present[view.ID]; ok {
		for i := range f.items {
			if f.items[i].ID != view.ID {
				continue
			}
			old := f.items[i]
			f.items[i] = view

			switch {
			case !old.IsRead && view.IsRead:
				f.unread--
			case old.IsRead && !view.IsRead:
				f.unread++
			}
			break
		}
	} else {
		f.present[view.ID] = struct{}{}
		f.items = append([]model.NotificationView{view}, f.items...)
		if !view.IsRead {
			f.unread++
		}
	}

	if f.unread < 0 {
		f.unread = 0
	}
}

// MarkRead optimistically flips the given ids read locally, then confirms
// with the server. On failure the local flags stay flipped and the error is
// returned; the next successful round trip re-syncs the counter.
func (f *Feed) MarkRead(ctx context.Context, ids []string) error {
	f.mu.Lock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range f.items {
		if _, ok := want[f.items[i].ID]; !ok {
			continue
		}
		if !f.items[i].IsRead {
			f.items[i].IsRead = true
			f.unread--
		}
	}
	if f.unread < 0 {
		f.unread = 0
	}
	f.mu.Unlock()

	count, err := f.fetcher.MarkRead(ctx, ids)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	f.mu.Lock()
	f.unread = count
	f.mu.Unlock()
	return nil
}

// MarkAllRead optimistically flips everything read locally, then confirms
// with the server. Same no-rollback semantics as MarkRead.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	for i := range f.items {
		f.items[i].IsRead = true
	}
	f.unread = 0
	f.mu.Unlock()

	count, err := f.fetcher.MarkAllRead(ctx)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}

	f.mu.Lock()
	f.unread = count
	f.mu.Unlock()
	return nil
}

// Items returns a copy of the merged list, newest first.
func (f *Feed) Items() []model.NotificationView {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.NotificationView, len(f.items))
	copy(out, f.items)
	return out
}

// UnreadCount returns the local unread mirror.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// HasMore reports whether another history page may exist.
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}
