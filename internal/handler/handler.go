// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/catalog/internal/auth"
	"github.com/hitoshi/catalog/internal/catalog"
	"github.com/hitoshi/catalog/internal/middleware"
	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/session"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListCategories(ctx context.Context) ([]*model.Category, error)
	ListItemsByCategory(ctx context.Context, categoryName string) (*model.Category, []*model.Item, error)
	GetItem(ctx context.Context, categoryName, itemName string) (*catalog.ItemDetail, error)
	FindItem(ctx context.Context, itemName string) (*catalog.ItemDetail, error)
	LatestItems(ctx context.Context, limit int) ([]model.ItemWithCategory, error)
	CatalogTree(ctx context.Context) ([]model.CategoryWithItems, error)
	CreateItem(ctx context.Context, ownerID string, in catalog.ItemInput) (*catalog.ItemDetail, error)
	UpdateItem(ctx context.Context, actorID, itemName string, in catalog.ItemInput) (*catalog.ItemDetail, error)
	DeleteItem(ctx context.Context, actorID, itemName string) (*model.Item, error)
}

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginConfig() auth.LoginConfig
	Connect(ctx context.Context, state *model.SessionState, code, receivedState string) (*auth.Verification, error)
	Disconnect(ctx context.Context, state *model.SessionState) error
}

// UserServiceInterface は項目の所有者表示に使うユーザー参照インターフェース。
type UserServiceInterface interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// SessionSaver は変更したセッション状態を永続化する。
type SessionSaver interface {
	Save(ctx context.Context, w http.ResponseWriter, state *session.State) error
}

// SessionRegenerator は権限の変わるタイミングでセッションIDを振り直す。
type SessionRegenerator interface {
	SessionSaver
	Regenerate(ctx context.Context, w http.ResponseWriter, state *session.State) error
}

// statusForError はドメインエラーをHTTPステータスに変換する。
// APIErrorでない場合は500とnilを返す。
func statusForError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, nil
	}

	switch apiErr.Code {
	case model.ErrCodeAntiForgeryMismatch,
		model.ErrCodeCodeExchangeFailed,
		model.ErrCodeTokenSubjectMismatch,
		model.ErrCodeAudienceMismatch,
		model.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized, apiErr
	case model.ErrCodeTokenInvalid:
		return http.StatusInternalServerError, apiErr
	case model.ErrCodeNotOwner:
		return http.StatusForbidden, apiErr
	case model.ErrCodeDuplicateName:
		return http.StatusConflict, apiErr
	case model.ErrCodeNotFound:
		return http.StatusNotFound, apiErr
	case model.ErrCodeInvalidInput, model.ErrCodeRevokeFailed:
		return http.StatusBadRequest, apiErr
	default:
		return http.StatusInternalServerError, apiErr
	}
}

// handleServiceError はサービス層のエラーをJSONエラーレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := statusForError(err)
	if apiErr == nil {
		slog.Error("unexpected service error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}
