// Package catalog はカテゴリと項目の参照・変更のドメインロジックを提供する。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/ownership"
	"github.com/hitoshi/catalog/internal/repository"
	"github.com/hitoshi/catalog/internal/security"
)

// LatestItemsLimit はトップページに表示する最新項目の件数。
const LatestItemsLimit = 6

// MutationRecorder は項目の変更操作の結果を記録する。
type MutationRecorder interface {
	RecordItemMutation(operation, result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordItemMutation(string, string) {}

// ItemInput は項目の作成・更新フォームの入力。
type ItemInput struct {
	Name         string
	Description  string
	CategoryName string
}

// ItemDetail は項目と所属カテゴリの組。
type ItemDetail struct {
	Item     *model.Item
	Category *model.Category
}

// Service はカタログのサービス層。
type Service struct {
	categories repository.CategoryRepository
	items      repository.ItemRepository
	sanitizer  security.TextSanitizer
	metrics    MutationRecorder
	now        func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	categories repository.CategoryRepository,
	items repository.ItemRepository,
	sanitizer security.TextSanitizer,
	metrics MutationRecorder,
) *Service {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Service{
		categories: categories,
		items:      items,
		sanitizer:  sanitizer,
		metrics:    metrics,
		now:        time.Now,
	}
}

// ListCategories は全カテゴリを名前順で返す。
func (s *Service) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	return categories, nil
}

// ListItemsByCategory はカテゴリ名で指定したカテゴリとその項目一覧を返す。
func (s *Service) ListItemsByCategory(ctx context.Context, categoryName string) (*model.Category, []*model.Item, error) {
	category, err := s.categories.FindByName(ctx, categoryName)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.items.ListByCategory(ctx, category.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("項目一覧の取得に失敗しました: %w", err)
	}
	return category, items, nil
}

// GetItem はカテゴリ名と項目名で項目を取得する。
func (s *Service) GetItem(ctx context.Context, categoryName, itemName string) (*ItemDetail, error) {
	category, err := s.categories.FindByName(ctx, categoryName)
	if err != nil {
		return nil, err
	}

	item, err := s.items.FindByCategoryAndName(ctx, category.ID, itemName)
	if err != nil {
		return nil, err
	}
	return &ItemDetail{Item: item, Category: category}, nil
}

// FindItem は項目名だけで項目を取得する。
func (s *Service) FindItem(ctx context.Context, itemName string) (*ItemDetail, error) {
	item, err := s.items.FindByName(ctx, itemName)
	if err != nil {
		return nil, err
	}

	category, err := s.categories.FindByID(ctx, item.CategoryID)
	if err != nil {
		return nil, err
	}
	return &ItemDetail{Item: item, Category: category}, nil
}

// LatestItems は最終更新日時の新しい順に最大limit件の項目を返す。
func (s *Service) LatestItems(ctx context.Context, limit int) ([]model.ItemWithCategory, error) {
	if limit <= 0 {
		limit = LatestItemsLimit
	}
	items, err := s.items.ListLatest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("最新項目の取得に失敗しました: %w", err)
	}
	return items, nil
}

// CatalogTree は全カテゴリを、それぞれに属する項目付きで返す。
func (s *Service) CatalogTree(ctx context.Context) ([]model.CategoryWithItems, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.items.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("項目一覧の取得に失敗しました: %w", err)
	}

	byCategory := make(map[string][]*model.Item, len(categories))
	for _, item := range items {
		byCategory[item.CategoryID] = append(byCategory[item.CategoryID], item)
	}

	tree := make([]model.CategoryWithItems, 0, len(categories))
	for _, c := range categories {
		children := byCategory[c.ID]
		if children == nil {
			children = []*model.Item{}
		}
		tree = append(tree, model.CategoryWithItems{Category: *c, Items: children})
	}
	return tree, nil
}

// CreateItem はownerIDを所有者として項目を作成する。
// 項目名はカテゴリをまたいで一意であり、重複時はDUPLICATE_NAMEエラーを返す。
func (s *Service) CreateItem(ctx context.Context, ownerID string, in ItemInput) (*ItemDetail, error) {
	detail, err := s.createItem(ctx, ownerID, in)
	s.record("create", err)
	return detail, err
}

func (s *Service) createItem(ctx context.Context, ownerID string, in ItemInput) (*ItemDetail, error) {
	if ownerID == "" {
		return nil, model.NewNotAuthenticatedError()
	}

	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	category, err := s.categories.FindByName(ctx, in.CategoryName)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item := &model.Item{
		ID:               uuid.New().String(),
		Name:             in.Name,
		Description:      in.Description,
		CategoryID:       category.ID,
		UserID:           ownerID,
		LastModification: now,
		CreatedAt:        now,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	slog.Info("item created",
		slog.String("item_id", item.ID),
		slog.String("user_id", ownerID),
		slog.String("category", category.Name),
	)
	return &ItemDetail{Item: item, Category: category}, nil
}

// UpdateItem はitemNameの項目を入力内容で上書きする。所有者本人のみ実行できる。
func (s *Service) UpdateItem(ctx context.Context, actorID, itemName string, in ItemInput) (*ItemDetail, error) {
	detail, err := s.updateItem(ctx, actorID, itemName, in)
	s.record("update", err)
	return detail, err
}

func (s *Service) updateItem(ctx context.Context, actorID, itemName string, in ItemInput) (*ItemDetail, error) {
	if actorID == "" {
		return nil, model.NewNotAuthenticatedError()
	}

	existing, err := s.items.FindByName(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if err := ownership.Require(actorID, existing.UserID); err != nil {
		return nil, err
	}

	in, err = s.normalize(in)
	if err != nil {
		return nil, err
	}

	category, err := s.categories.FindByName(ctx, in.CategoryName)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Name = in.Name
	updated.Description = in.Description
	updated.CategoryID = category.ID
	updated.LastModification = s.now()

	if err := s.items.UpdateOwned(ctx, &updated, actorID); err != nil {
		return nil, err
	}

	slog.Info("item updated",
		slog.String("item_id", updated.ID),
		slog.String("user_id", actorID),
	)
	return &ItemDetail{Item: &updated, Category: category}, nil
}

// DeleteItem はitemNameの項目を削除する。所有者本人のみ実行できる。
func (s *Service) DeleteItem(ctx context.Context, actorID, itemName string) (*model.Item, error) {
	item, err := s.deleteItem(ctx, actorID, itemName)
	s.record("delete", err)
	return item, err
}

func (s *Service) deleteItem(ctx context.Context, actorID, itemName string) (*model.Item, error) {
	if actorID == "" {
		return nil, model.NewNotAuthenticatedError()
	}

	item, err := s.items.FindByName(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if err := ownership.Require(actorID, item.UserID); err != nil {
		return nil, err
	}

	if err := s.items.DeleteOwned(ctx, item.ID, actorID); err != nil {
		return nil, err
	}

	slog.Info("item deleted",
		slog.String("item_id", item.ID),
		slog.String("user_id", actorID),
	)
	return item, nil
}

// normalize は前後の空白を除き、必須項目を検証する。
// サニタイズで内容が変わる入力（タグや"<"を含むもの）は切り詰めずに拒否する。
func (s *Service) normalize(in ItemInput) (ItemInput, error) {
	var err error
	if in.Name, err = s.plainText("item name", in.Name); err != nil {
		return in, err
	}
	if in.Description, err = s.plainText("description", in.Description); err != nil {
		return in, err
	}

	if in.Name == "" {
		return in, model.NewInvalidInputError("item name is required")
	}
	if in.CategoryName == "" {
		return in, model.NewInvalidInputError("category is required")
	}
	return in, nil
}

func (s *Service) plainText(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if s.sanitizer.Sanitize(trimmed) != trimmed {
		return "", model.NewInvalidInputError(field + " must not contain HTML markup or '<'")
	}
	return trimmed, nil
}

func (s *Service) record(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		for _, code := range []string{
			model.ErrCodeNotAuthenticated,
			model.ErrCodeNotOwner,
			model.ErrCodeDuplicateName,
			model.ErrCodeNotFound,
			model.ErrCodeInvalidInput,
		} {
			if model.HasCode(err, code) {
				result = code
				break
			}
		}
	}
	s.metrics.RecordItemMutation(operation, result)
}
