package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hirewave/notify/internal/model"
)

// fakeFetcher serves scripted pages and records mark-read calls.
type fakeFetcher struct {
	pages map[string]*model.FeedPage // keyed by cursor, "" for first page

	fetchErr    error
	markErr     error
	unreadAfter int

	markedIDs []string
	markedAll bool
}

func (f *fakeFetcher) FetchPage(_ context.Context, cursor *string, _ int) (*model.FeedPage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	key := ""
	if cursor != nil {
		key = *cursor
	}
	page, ok := f.pages[key]
	if !ok {
		return nil, fmt.Errorf("no page for cursor %q", key)
	}
	return page, nil
}

func (f *fakeFetcher) MarkRead(_ context.Context, ids []string) (int, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	f.markedIDs = ids
	return f.unreadAfter, nil
}

func (f *fakeFetcher) MarkAllRead(_ context.Context) (int, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	f.markedAll = true
	return f.unreadAfter, nil
}

func view(id string, read bool) model.NotificationView {
	return model.NotificationView{
		ID:        id,
		Type:      model.TypeMessageEvent,
		Title:     "t-" + id,
		IsRead:    read,
		CreatedAt: time.Now().UTC(),
	}
}

func page(unread int, next *string, views ...model.NotificationView) *model.FeedPage {
	return &model.FeedPage{Notifications: views, NextCursor: next, UnreadCount: unread}
}

func ids(items []model.NotificationView) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func strptr(s string) *string { return &s }

func TestLoadMore_Pagination(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*model.FeedPage{
		"":   page(2, strptr("c1"), view("n3", false), view("n2", false)),
		"c1": page(2, nil, view("n1", true)),
	}}
	f := New(fetcher, 2, nil)

	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("first LoadMore: %v", err)
	}
	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("second LoadMore: %v", err)
	}

	got := ids(f.Items())
	want := []string{"n3", "n2", "n1"}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}

	if f.HasMore() {
		t.Error("HasMore = true after final page")
	}
	if f.UnreadCount() != 2 {
		t.Errorf("UnreadCount = %d, want 2", f.UnreadCount())
	}

	// Exhausted feed: further loads are no-ops, not errors.
	if err := f.LoadMore(context.Background()); err != nil {
		t.Errorf("LoadMore after exhaustion: %v", err)
	}
}

func TestApplyPage_Idempotent(t *testing.T) {
	p := page(1, strptr("c1"), view("n2", false), view("n1", true))
	fetcher := &fakeFetcher{pages: map[string]*model.FeedPage{"": p, "c1": p}}
	f := New(fetcher, 2, nil)

	// The same page applied twice (first load, then an overlapping fetch)
	// must not duplicate or reorder anything.
	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	once := ids(f.Items())

	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("second LoadMore: %v", err)
	}
	twice := ids(f.Items())

	if len(once) != len(twice) {
		t.Fatalf("item count changed on replay: %v vs %v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("order changed on replay: %v vs %v", once, twice)
		}
	}
}

func TestApplyPush_PrependsNew(t *testing.T) {
	f := New(&fakeFetcher{}, 2, nil)

	f.ApplyPush(view("n1", false))
	f.ApplyPush(view("n2", false))
	f.ApplyPush(view("n3", true))

	got := ids(f.Items())
	want := []string{"n3", "n2", "n1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
	if f.UnreadCount() != 2 {
		t.Errorf("UnreadCount = %d, want 2", f.UnreadCount())
	}
}

func TestApplyPush_ReplacesInPlace(t *testing.T) {
	f := New(&fakeFetcher{}, 2, nil)
	f.ApplyPush(view("n1", false))
	f.ApplyPush(view("n2", false))

	// n1 transitions unread -> read; its position must not change.
	f.ApplyPush(view("n1", true))

	items := f.Items()
	if items[1].ID != "n1" || !items[1].IsRead {
		t.Errorf("items[1] = %+v, want read n1 in place", items[1])
	}
	if f.UnreadCount() != 1 {
		t.Errorf("UnreadCount = %d, want 1", f.UnreadCount())
	}

	// read -> unread transition counts back up.
	f.ApplyPush(view("n1", false))
	if f.UnreadCount() != 2 {
		t.Errorf("UnreadCount = %d after unread transition, want 2", f.UnreadCount())
	}
}

func TestApplyPush_ThenPageReplayKeepsOneCopy(t *testing.T) {
	pushed := view("n2", false)

	fetcher := &fakeFetcher{pages: map[string]*model.FeedPage{
		"": page(1, nil, view("n2", false), view("n1", true)),
	}}
	f := New(fetcher, 2, nil)

	f.ApplyPush(pushed)
	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	got := ids(f.Items())
	want := []string{"n2", "n1"}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
}

func TestMarkAllRead(t *testing.T) {
	// 3 unread + 2 read, server reports 0 after the round trip.
	fetcher := &fakeFetcher{unreadAfter: 0, pages: map[string]*model.FeedPage{
		"": page(3, nil,
			view("n5", false), view("n4", false), view("n3", false),
			view("n2", true), view("n1", true)),
	}}
	f := New(fetcher, 5, nil)
	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	if err := f.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}

	for _, n := range f.Items() {
		if !n.IsRead {
			t.Errorf("%s still unread after MarkAllRead", n.ID)
		}
	}
	if f.UnreadCount() != 0 {
		t.Errorf("UnreadCount = %d, want 0", f.UnreadCount())
	}
	if !fetcher.markedAll {
		t.Error("server round trip not performed")
	}
}

func TestMarkRead_OptimisticNoRollback(t *testing.T) {
	fetcher := &fakeFetcher{markErr: errors.New("network down"), pages: map[string]*model.FeedPage{
		"": page(2, nil, view("n2", false), view("n1", false)),
	}}
	f := New(fetcher, 2, nil)
	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	err := f.MarkRead(context.Background(), []string{"n2"})
	if err == nil {
		t.Fatal("MarkRead succeeded, want error")
	}

	// Flag stays flipped even though the round trip failed.
	items := f.Items()
	if !items[0].IsRead {
		t.Error("n2 flag rolled back on failure")
	}
	if f.UnreadCount() != 1 {
		t.Errorf("UnreadCount = %d, want optimistic 1", f.UnreadCount())
	}
}

func TestMarkRead_AdoptsServerCount(t *testing.T) {
	// Server knows about unread items outside the loaded window.
	fetcher := &fakeFetcher{unreadAfter: 7, pages: map[string]*model.FeedPage{
		"": page(9, nil, view("n2", false), view("n1", false)),
	}}
	f := New(fetcher, 2, nil)
	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	if err := f.MarkRead(context.Background(), []string{"n2", "n1"}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	if f.UnreadCount() != 7 {
		t.Errorf("UnreadCount = %d, want server value 7", f.UnreadCount())
	}
	if len(fetcher.markedIDs) != 2 {
		t.Errorf("marked ids = %v, want both", fetcher.markedIDs)
	}
}

func TestLoadMore_FetchFailureLeavesStateUntouched(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*model.FeedPage{
		"": page(1, nil, view("n1", false)),
	}}
	f := New(fetcher, 2, nil)
	if err := f.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	fetcher.fetchErr = errors.New("server error")
	f2 := f.Items()

	if err := f.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded, want error")
	}

	after := f.Items()
	if len(after) != len(f2) {
		t.Errorf("items changed after failed fetch: %v vs %v", ids(after), ids(f2))
	}
	if f.UnreadCount() != 1 {
		t.Errorf("UnreadCount = %d after failed fetch, want 1", f.UnreadCount())
	}
}
