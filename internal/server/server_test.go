package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hirewave/notify/internal/auth"
	"github.com/hirewave/notify/internal/builder"
	"github.com/hirewave/notify/internal/config"
	"github.com/hirewave/notify/internal/model"
	"github.com/hirewave/notify/internal/registry"
	"github.com/hirewave/notify/internal/store"
)

const testSecret = "test-secret"

type fakeStore struct {
	rows       []store.NotificationWithActor
	nextCursor *string
	unread     int

	markedIDs []uuid.UUID
	markedAll bool
	listErr   error
}

func (f *fakeStore) ListNotifications(_ context.Context, _ string, _ *string, limit int) ([]store.NotificationWithActor, *string, error) {
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	if limit < len(f.rows) {
		return f.rows[:limit], f.nextCursor, nil
	}
	return f.rows, f.nextCursor, nil
}

func (f *fakeStore) UnreadCount(_ context.Context, _ string) (int, error) {
	return f.unread, nil
}

func (f *fakeStore) MarkRead(_ context.Context, _ string, ids []uuid.UUID) (int, error) {
	f.markedIDs = ids
	return f.unread, nil
}

func (f *fakeStore) MarkAllRead(_ context.Context, _ string) (int, error) {
	f.markedAll = true
	return 0, nil
}

type nilBuilderStore struct{}

func (nilBuilderStore) CreateNotification(context.Context, *model.Notification) error { return nil }
func (nilBuilderStore) GetTemplate(context.Context, model.NotificationType) (*model.Template, error) {
	return nil, store.ErrNotFound
}
func (nilBuilderStore) GetUser(context.Context, string) (*model.User, error) {
	return nil, store.ErrNotFound
}

func signToken(t *testing.T, userID, status string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
		Status: status,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func testServer(t *testing.T, fs *fakeStore) (*Server, *registry.Hub) {
	t.Helper()
	hub := registry.NewHub(registry.Config{
		HeartbeatInterval: time.Minute,
		WriteTimeout:      time.Second,
	}, nil)
	b := builder.New(nilBuilderStore{}, nil, nil, nil)
	a := auth.NewJWTAuthenticator(testSecret)
	return New(config.ServerConfig{}, fs, b, hub, a, nil), hub
}

func get(t *testing.T, ts *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestListNotifications(t *testing.T) {
	n1 := model.Notification{
		ID:          uuid.New(),
		RecipientID: "user-1",
		Type:        model.TypeOrderEvent,
		Title:       "New order",
		CreatedAt:   time.Now().UTC(),
	}
	next := store.EncodeCursor(n1.CreatedAt, n1.ID)
	fs := &fakeStore{
		rows: []store.NotificationWithActor{
			{Notification: n1, Actor: &model.User{ID: "user-2", DisplayName: "Ama"}},
		},
		nextCursor: &next,
		unread:     3,
	}
	s, _ := testServer(t, fs)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := get(t, ts, "/api/v1/notifications", signToken(t, "user-1", "active"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var page model.FeedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if len(page.Notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(page.Notifications))
	}
	if page.UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", page.UnreadCount)
	}
	if page.NextCursor == nil || *page.NextCursor != next {
		t.Errorf("nextCursor = %v, want %q", page.NextCursor, next)
	}

	view := page.Notifications[0]
	if view.Actor == nil || view.Actor.Name != "Ama" {
		t.Errorf("actor = %+v, want name Ama", view.Actor)
	}
}

func TestListNotifications_AuthRequired(t *testing.T) {
	s, _ := testServer(t, &fakeStore{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not-a-jwt"},
		{"suspended account", signToken(t, "user-1", "suspended")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, ts, "/api/v1/notifications", tt.token)
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestListNotifications_InvalidParams(t *testing.T) {
	s, _ := testServer(t, &fakeStore{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	token := signToken(t, "user-1", "active")

	for _, path := range []string{
		"/api/v1/notifications?cursor=%21%21%21",
		"/api/v1/notifications?limit=0",
		"/api/v1/notifications?limit=abc",
	} {
		resp := get(t, ts, path, token)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func postRead(t *testing.T, ts *httptest.Server, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/notifications/read", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestMarkRead(t *testing.T) {
	fs := &fakeStore{unread: 1}
	s, _ := testServer(t, fs)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id := uuid.New()
	resp := postRead(t, ts, signToken(t, "user-1", "active"), `{"ids": ["`+id.String()+`"]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out model.MarkReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", out.UnreadCount)
	}
	if len(fs.markedIDs) != 1 || fs.markedIDs[0] != id {
		t.Errorf("marked ids = %v, want [%s]", fs.markedIDs, id)
	}
}

func TestMarkRead_All(t *testing.T) {
	fs := &fakeStore{unread: 4}
	s, _ := testServer(t, fs)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := postRead(t, ts, signToken(t, "user-1", "active"), `{"all": true}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !fs.markedAll {
		t.Error("MarkAllRead not called")
	}

	var out model.MarkReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", out.UnreadCount)
	}
}

func TestMarkRead_BadRequest(t *testing.T) {
	s, _ := testServer(t, &fakeStore{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	token := signToken(t, "user-1", "active")

	for _, body := range []string{`{}`, `{"ids": []}`, `{"ids": ["nope"]}`, `{{{`} {
		resp := postRead(t, ts, token, body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func wsURL(ts *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
}

func TestWebSocket_BadTokenClosedWithPolicyViolation(t *testing.T) {
	s, _ := testServer(t, &fakeStore{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "bad-token"), nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	if err == nil {
		t.Fatal("read succeeded, want policy-violation close")
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("close error = %v, want 1008", err)
	}
}

func TestWebSocket_PushReachesAuthenticatedClient(t *testing.T) {
	s, hub := testServer(t, &fakeStore{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, signToken(t, "user-1", "active")), nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer ws.Close()

	// Registration happens after the upgrade; wait for the hub to see it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.UserConns("user-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Push("user-1", model.NotificationView{
		ID:    uuid.NewString(),
		Type:  model.TypeMessageEvent,
		Title: "New message",
	})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame model.PushFrame
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if frame.Type != model.PushFrameType {
		t.Errorf("frame type = %q, want %q", frame.Type, model.PushFrameType)
	}
	if frame.Notification.Title != "New message" {
		t.Errorf("title = %q", frame.Notification.Title)
	}
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, &fakeStore{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := get(t, ts, "/health", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
