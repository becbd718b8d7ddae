package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/catalog/internal/middleware"
	"github.com/hitoshi/catalog/internal/session"
)

// loginPath は未ログイン時のリダイレクト先。
const loginPath = "/login"

// SessionManager はセッションの読み込みと保存を行う。
type SessionManager interface {
	Load(ctx context.Context, r *http.Request) (*session.State, error)
	Save(ctx context.Context, w http.ResponseWriter, state *session.State) error
	Regenerate(ctx context.Context, w http.ResponseWriter, state *session.State) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Sessions          SessionManager
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HTTPMetrics       middleware.HTTPMetricsRecorder // nilならHTTPメトリクスを記録しない

	// 運用エンドポイント
	DB             Pinger
	MetricsHandler http.Handler // nilなら/metricsを公開しない

	// サービス
	AuthService    AuthServiceInterface
	CatalogService CatalogServiceInterface
	UserService    UserServiceInterface // nilなら項目詳細に所有者名を表示しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → Session → RateLimit(General) → CSRF
//
// 項目の変更操作にはRequireLoginと書き込み用レート制限を追加し、
// JSONエンドポイントにはCORSを追加する。/healthと/metricsはセッションの外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}

	// --- 運用エンドポイント ---
	r.Get("/health", HealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions)
	catalogHandler := NewCatalogHandler(deps.CatalogService, deps.UserService, deps.Sessions)
	jsonHandler := NewJSONHandler(deps.CatalogService)

	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", catalogHandler.Home)

		// 認証
		r.Get("/login", authHandler.Login)
		r.Post("/gconnect", authHandler.GConnect)
		r.Get("/gdisconnect", authHandler.GDisconnect)
		r.Get("/logout", authHandler.Logout)

		// JSONエンドポイント（CORS許可）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			jsonRoute(r, "/categories/JSON", jsonHandler.Catalog)
			jsonRoute(r, "/catalog/{category}/items/JSON/", jsonHandler.CategoryItems)
			jsonRoute(r, "/catalog/{category}/{item}/JSON", jsonHandler.Item)
		})

		r.Get("/catalog/{category}/items/", catalogHandler.CategoryItems)
		r.Get("/catalog/{category}/{item}/", catalogHandler.ItemDetail)

		// 項目の変更操作: RequireLogin → RateLimit(Write)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireLogin(loginPath))
			r.Use(deps.RateLimiter.WriteMiddleware())

			r.Get("/catalog/item/new", catalogHandler.NewItemForm)
			r.Post("/catalog/item/new", catalogHandler.CreateItem)
			r.Get("/catalog/{item}/edit", catalogHandler.EditItemForm)
			r.Post("/catalog/{item}/edit", catalogHandler.UpdateItem)
			r.Get("/catalog/{item}/delete", catalogHandler.DeleteItemForm)
			r.Post("/catalog/{item}/delete", catalogHandler.DeleteItem)
		})
	})

	return r
}

// jsonRoute はGETとCORSプリフライト用のOPTIONSを登録する。
// OPTIONSのレスポンスはCORSミドルウェアが書き込む。
func jsonRoute(r chi.Router, pattern string, h http.HandlerFunc) {
	r.Get(pattern, h)
	r.Options(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
