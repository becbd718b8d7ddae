// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/catalog/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// ResolveOrCreate はemailでユーザーを検索し、存在しなければuserを作成する。
	// 検索と作成は同一トランザクション内でemail単位のアドバイザリロックを取得して行う。
	// 同じemailのユーザーが複数存在する場合はNOT_FOUNDエラーを返す。
	// 戻り値は解決されたユーザーIDと、新規作成したかどうか。
	ResolveOrCreate(ctx context.Context, user *model.User) (string, bool, error)
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// List は全カテゴリを名前順で返す。
	List(ctx context.Context) ([]*model.Category, error)

	// FindByName は名前でカテゴリを取得する。
	// 0件または複数件一致した場合はNOT_FOUNDエラーを返す。
	FindByName(ctx context.Context, name string) (*model.Category, error)

	// FindByID は指定IDのカテゴリを取得する。見つからない場合はNOT_FOUNDエラーを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)
}

// ItemRepository は項目データの永続化インターフェース。
type ItemRepository interface {
	// ListAll は全項目を名前順で返す。
	ListAll(ctx context.Context) ([]*model.Item, error)

	// ListByCategory はカテゴリに属する項目を名前順で返す。
	ListByCategory(ctx context.Context, categoryID string) ([]*model.Item, error)

	// ListLatest は最終更新日時の降順で最大limit件の項目をカテゴリ名付きで返す。
	ListLatest(ctx context.Context, limit int) ([]model.ItemWithCategory, error)

	// FindByName は名前で項目を取得する。
	// 0件または複数件一致した場合はNOT_FOUNDエラーを返す。
	FindByName(ctx context.Context, name string) (*model.Item, error)

	// FindByCategoryAndName はカテゴリIDと名前で項目を取得する。
	// 0件または複数件一致した場合はNOT_FOUNDエラーを返す。
	FindByCategoryAndName(ctx context.Context, categoryID, name string) (*model.Item, error)

	// Create は項目を作成する。名前が既に存在する場合はDUPLICATE_NAMEエラーを返す。
	Create(ctx context.Context, item *model.Item) error

	// UpdateOwned は所有者がownerIDである項目を上書き更新する。
	// 対象行がない場合はNOT_FOUNDエラー、名前の重複はDUPLICATE_NAMEエラーを返す。
	UpdateOwned(ctx context.Context, item *model.Item, ownerID string) error

	// DeleteOwned は所有者がownerIDである項目を削除する。
	// 対象行がない場合はNOT_FOUNDエラーを返す。
	DeleteOwned(ctx context.Context, id, ownerID string) error
}

// SessionStore はセッション状態の永続化インターフェース。
// PostgreSQLとRedisの実装を持つ。
type SessionStore interface {
	// Save はセッション状態を作成または上書きする。state.ExpiresAtまで有効。
	Save(ctx context.Context, state *model.SessionState) error

	// Find は指定IDのセッション状態を取得する。存在しないか期限切れの場合はnilを返す。
	Find(ctx context.Context, id string) (*model.SessionState, error)

	// Delete は指定IDのセッションを削除する。
	Delete(ctx context.Context, id string) error
}
