// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/catalog/internal/session"
)

// SessionLoader はリクエストからセッション状態を読み込むインターフェース。
// session.Managerが実装する。
type SessionLoader interface {
	Load(ctx context.Context, r *http.Request) (*session.State, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッション状態を読み込み、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または期限切れの場合は匿名の状態を注入する。
func NewSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := loader.Load(r.Context(), r)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			if holder := userIDHolderFromContext(r.Context()); holder != nil {
				holder.userID = state.UserID
			}

			ctx := session.WithState(r.Context(), state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLogin はログインしていないリクエストをログインページへリダイレクトする。
// NewSessionMiddlewareの後に配置する。
func RequireLogin(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !session.FromContext(r.Context()).IsAuthenticated() {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
