package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/catalog/internal/model"
)

// itemNameConstraint はitems.nameの一意制約名。
const itemNameConstraint = "uq_items_name"

// PostgresItemRepo はPostgreSQLを使用した項目リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

const itemColumns = `id, name, description, category_id, user_id, last_modification, created_at`

// ListAll は全項目を名前順で返す。
func (r *PostgresItemRepo) ListAll(ctx context.Context) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListByCategory はカテゴリに属する項目を名前順で返す。
func (r *PostgresItemRepo) ListByCategory(ctx context.Context, categoryID string) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE category_id = $1 ORDER BY name`,
		categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items by category: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListLatest は最終更新日時の降順で最大limit件の項目をカテゴリ名付きで返す。
func (r *PostgresItemRepo) ListLatest(ctx context.Context, limit int) ([]model.ItemWithCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.name, i.description, i.category_id, i.user_id,
		        i.last_modification, i.created_at, c.name
		 FROM items i
		 JOIN categories c ON c.id = i.category_id
		 ORDER BY i.last_modification DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest items: %w", err)
	}
	defer rows.Close()

	var results []model.ItemWithCategory
	for rows.Next() {
		var iwc model.ItemWithCategory
		if err := rows.Scan(
			&iwc.ID, &iwc.Name, &iwc.Description, &iwc.CategoryID, &iwc.UserID,
			&iwc.LastModification, &iwc.CreatedAt, &iwc.CategoryName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan latest item: %w", err)
		}
		results = append(results, iwc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate latest items: %w", err)
	}
	return results, nil
}

// FindByName は名前で項目を取得する。
func (r *PostgresItemRepo) FindByName(ctx context.Context, name string) (*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE name = $1 LIMIT 2`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find item by name: %w", err)
	}
	defer rows.Close()

	return exactlyOneItem(rows, name)
}

// FindByCategoryAndName はカテゴリIDと名前で項目を取得する。
func (r *PostgresItemRepo) FindByCategoryAndName(ctx context.Context, categoryID, name string) (*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE category_id = $1 AND name = $2 LIMIT 2`,
		categoryID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find item by category and name: %w", err)
	}
	defer rows.Close()

	return exactlyOneItem(rows, name)
}

// Create は項目を作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, name, description, category_id, user_id, last_modification, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.Name, item.Description, item.CategoryID, item.UserID,
		item.LastModification, item.CreatedAt,
	)
	if isUniqueViolation(err, itemNameConstraint) {
		return model.NewDuplicateNameError(item.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// UpdateOwned は所有者がownerIDである項目を上書き更新する。
// WHERE句で所有者を再確認するため、所有権の確認と更新は1文で原子的に行われる。
func (r *PostgresItemRepo) UpdateOwned(ctx context.Context, item *model.Item, ownerID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items
		 SET name = $1, description = $2, category_id = $3, last_modification = $4
		 WHERE id = $5 AND user_id = $6`,
		item.Name, item.Description, item.CategoryID, item.LastModification,
		item.ID, ownerID,
	)
	if isUniqueViolation(err, itemNameConstraint) {
		return model.NewDuplicateNameError(item.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("item", item.Name)
	}
	return nil
}

// DeleteOwned は所有者がownerIDである項目を削除する。
func (r *PostgresItemRepo) DeleteOwned(ctx context.Context, id, ownerID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("item", id)
	}
	return nil
}

func scanItems(rows *sql.Rows) ([]*model.Item, error) {
	var items []*model.Item
	for rows.Next() {
		item := &model.Item{}
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Description, &item.CategoryID, &item.UserID,
			&item.LastModification, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// exactlyOneItem は検索結果がちょうど1件であることを要求する。
func exactlyOneItem(rows *sql.Rows, name string) (*model.Item, error) {
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, model.NewNotFoundError("item", name)
	}
	return items[0], nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
