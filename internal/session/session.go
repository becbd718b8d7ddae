// Package session はブラウザセッションの状態管理を提供する。
// 状態はCookieのセッションIDに紐づけてSessionStoreに保存する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/repository"
)

// CookieName はセッションIDを保持するCookieの名前。
const CookieName = "session_id"

// State はセッション状態。
type State = model.SessionState

// Config はセッション管理の設定。
type Config struct {
	MaxAge       time.Duration
	CookieSecure bool
	CookieDomain string
}

// Manager はCookieとSessionStoreの間でセッション状態を読み書きする。
type Manager struct {
	store  repository.SessionStore
	config Config
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(store repository.SessionStore, config Config) *Manager {
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	return &Manager{store: store, config: config, now: time.Now}
}

// Load はリクエストのCookieからセッション状態を読み込む。
// Cookieがない、または保存済み状態が存在しないか期限切れの場合は
// 新しいIDを持つ匿名の状態を返す。新しい状態はSaveするまで保存されない。
func (m *Manager) Load(ctx context.Context, r *http.Request) (*State, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		state, err := m.store.Find(ctx, cookie.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if state != nil {
			return state, nil
		}
	}

	return m.newState()
}

// Save はセッション状態を保存し、Cookieを発行する。
// 保存のたびに有効期限をMaxAge分延長する。
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, state *State) error {
	now := m.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.ExpiresAt = now.Add(m.config.MaxAge)

	if err := m.store.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    state.ID,
		Path:     "/",
		Domain:   m.config.CookieDomain,
		MaxAge:   int(m.config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Regenerate は保存済みの旧セッションを削除し、状態に新しいIDを割り当てて保存する。
// ログインやログアウトで権限が変わる時点で呼び、固定化された旧IDを無効にする。
func (m *Manager) Regenerate(ctx context.Context, w http.ResponseWriter, state *State) error {
	oldID := state.ID
	newID, err := generateSessionID()
	if err != nil {
		return fmt.Errorf("failed to generate session ID: %w", err)
	}

	if oldID != "" {
		if err := m.store.Delete(ctx, oldID); err != nil {
			return fmt.Errorf("failed to delete old session: %w", err)
		}
	}

	state.ID = newID
	state.CreatedAt = time.Time{}
	if err := m.Save(ctx, w, state); err != nil {
		return err
	}

	slog.Debug("session regenerated", slog.String("session_id", newID))
	return nil
}

func (m *Manager) newState() (*State, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	return &State{ID: id, CreatedAt: m.now()}, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
