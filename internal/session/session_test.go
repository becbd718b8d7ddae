package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/hitoshi/catalog/internal/model"
)

// --- モック定義 ---

type mockStore struct {
	saveFn   func(ctx context.Context, state *model.SessionState) error
	findFn   func(ctx context.Context, id string) (*model.SessionState, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockStore) Save(ctx context.Context, state *model.SessionState) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, state)
	}
	return nil
}

func (m *mockStore) Find(ctx context.Context, id string) (*model.SessionState, error) {
	if m.findFn != nil {
		return m.findFn(ctx, id)
	}
	return nil, nil
}

func (m *mockStore) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// --- テスト ---

func TestManager_Load_WithoutCookieReturnsFreshState(t *testing.T) {
	m := NewManager(&mockStore{}, Config{MaxAge: time.Hour})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	state, err := m.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.ID == "" {
		t.Error("新しい状態にIDが設定されていない")
	}
	if state.IsAuthenticated() {
		t.Error("新しい状態は匿名であるべき")
	}
}

func TestManager_Load_UnknownCookieReturnsFreshState(t *testing.T) {
	m := NewManager(&mockStore{}, Config{MaxAge: time.Hour})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "stale"})

	state, err := m.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.ID == "stale" {
		t.Error("期限切れのセッションIDを再利用してはいけない")
	}
}

func TestManager_Load_ExistingSession(t *testing.T) {
	store := &mockStore{
		findFn: func(_ context.Context, id string) (*model.SessionState, error) {
			return &model.SessionState{ID: id, UserID: "user-1"}, nil
		},
	}
	m := NewManager(store, Config{MaxAge: time.Hour})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})

	state, err := m.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.ID != "abc" || state.UserID != "user-1" {
		t.Errorf("Load() = %+v", state)
	}
}

func TestManager_Load_StoreError(t *testing.T) {
	store := &mockStore{
		findFn: func(_ context.Context, _ string) (*model.SessionState, error) {
			return nil, errors.New("db down")
		},
	}
	m := NewManager(store, Config{MaxAge: time.Hour})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})

	if _, err := m.Load(context.Background(), req); err == nil {
		t.Error("ストアのエラーが返されるべき")
	}
}

func TestManager_Save_SetsCookieAndSlidingExpiry(t *testing.T) {
	var saved *model.SessionState
	store := &mockStore{
		saveFn: func(_ context.Context, state *model.SessionState) error {
			saved = state
			return nil
		},
	}
	m := NewManager(store, Config{MaxAge: time.Hour, CookieSecure: true})
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	rec := httptest.NewRecorder()
	state := &State{ID: "abc"}
	if err := m.Save(context.Background(), rec, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if saved == nil || !saved.ExpiresAt.Equal(fixed.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", saved.ExpiresAt, fixed.Add(time.Hour))
	}
	if !saved.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", saved.CreatedAt, fixed)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || c.Value != "abc" {
		t.Errorf("cookie = %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie属性が不正: HttpOnly=%v Secure=%v SameSite=%v", c.HttpOnly, c.Secure, c.SameSite)
	}
	if c.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
	}
}

func TestManager_Regenerate_RotatesIDAndDeletesOld(t *testing.T) {
	var deleted string
	var saved *model.SessionState
	store := &mockStore{
		deleteFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
		saveFn: func(_ context.Context, state *model.SessionState) error {
			saved = state
			return nil
		},
	}
	m := NewManager(store, Config{MaxAge: time.Hour})

	state := &State{ID: "fixed-id", UserID: "user-1", StateToken: "TOKEN"}
	rec := httptest.NewRecorder()
	if err := m.Regenerate(context.Background(), rec, state); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	if deleted != "fixed-id" {
		t.Errorf("deleted = %q, want fixed-id", deleted)
	}
	if state.ID == "fixed-id" || len(state.ID) != 64 {
		t.Errorf("ID = %q, want a new 64-char id", state.ID)
	}
	if saved != state || saved.UserID != "user-1" {
		t.Errorf("saved = %+v, want rotated state with its data", saved)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != state.ID {
		t.Errorf("cookie = %+v, want new id %q", cookies, state.ID)
	}
}

func TestManager_Regenerate_DeleteError(t *testing.T) {
	saved := false
	store := &mockStore{
		deleteFn: func(context.Context, string) error { return errors.New("db down") },
		saveFn: func(context.Context, *model.SessionState) error {
			saved = true
			return nil
		},
	}
	m := NewManager(store, Config{MaxAge: time.Hour})

	state := &State{ID: "fixed-id"}
	if err := m.Regenerate(context.Background(), httptest.NewRecorder(), state); err == nil {
		t.Fatal("Regenerate() should fail when the old session cannot be deleted")
	}
	if saved {
		t.Error("state must not be saved under a new id when the old one survives")
	}
}

func TestIssueAntiForgeryToken(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{32}$`)
	state := &State{}

	first, err := IssueAntiForgeryToken(state)
	if err != nil {
		t.Fatalf("IssueAntiForgeryToken() error = %v", err)
	}
	if !pattern.MatchString(first) {
		t.Errorf("token = %q, want 32 chars of [A-Z0-9]", first)
	}
	if state.StateToken != first {
		t.Errorf("StateToken = %q, want %q", state.StateToken, first)
	}

	second, _ := IssueAntiForgeryToken(state)
	if second == first {
		t.Error("連続して同じトークンが生成された")
	}
}

func TestClear(t *testing.T) {
	state := &State{
		StateToken:  "S",
		AccessToken: "A",
		Subject:     "sub",
		Username:    "Alice",
		Email:       "a@example.com",
		Picture:     "p",
		UserID:      "u",
		Flashes:     []string{"hi"},
	}

	Clear(state, KeyAccessToken, KeySubject, Key("unknown"))

	if state.AccessToken != "" || state.Subject != "" {
		t.Error("指定キーが消去されていない")
	}
	if state.Username != "Alice" || state.UserID != "u" || state.StateToken != "S" {
		t.Error("指定していないキーが消去された")
	}

	Clear(state, KeyFlashes, KeyUserID)
	if state.Flashes != nil || state.UserID != "" {
		t.Error("flashes/user_idが消去されていない")
	}
}

func TestTeardownMakesAnonymous(t *testing.T) {
	state := &State{AccessToken: "A", Subject: "s", Username: "n", Email: "e", Picture: "p", UserID: "u"}
	state.Teardown()
	if state.IsAuthenticated() || state.IsConnected() {
		t.Error("Teardown後は匿名であるべき")
	}
	if state.Username != "" || state.Email != "" || state.Picture != "" || state.Subject != "" {
		t.Errorf("識別情報が残っている: %+v", state)
	}
}

func TestContextHelpers(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("空のコンテキストからはnilが返るべき")
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Error("空のコンテキストのユーザーIDは空文字列であるべき")
	}

	state := &State{UserID: "user-1"}
	ctx := WithState(context.Background(), state)
	if FromContext(ctx) != state {
		t.Error("格納した状態が取得できない")
	}
	if UserIDFromContext(ctx) != "user-1" {
		t.Errorf("UserIDFromContext() = %q", UserIDFromContext(ctx))
	}
}
