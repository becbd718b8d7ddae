package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeedItem は初期投入する項目を表す。
type SeedItem struct {
	Name        string
	Description string
	Category    string
}

// SeedData は初期投入データ一式を表す。
type SeedData struct {
	OwnerName    string
	OwnerEmail   string
	OwnerPicture string
	Categories   []string
	Items        []SeedItem
}

// DefaultSeedData はデモ用のユーザー、カテゴリ、項目を返す。
func DefaultSeedData() SeedData {
	return SeedData{
		OwnerName:    "dummy",
		OwnerEmail:   "dummy@dummy.com",
		OwnerPicture: "https://pbs.twimg.com/profile_images/2671170543/18debd694829ed78203a5a36dd364160_400x400.png",
		Categories:   []string{"Football", "Tennis", "Handball", "Basketball", "Volleyball"},
		Items: []SeedItem{
			{Name: "Ronaldinho", Description: "A football player from Brazil, and one of the best football players of all time", Category: "Football"},
			{Name: "Rafael Nadal", Description: "A tennis player from Spain, and he is called the king of clay", Category: "Tennis"},
			{Name: "Ahmed El-ahmar", Description: "A handball player from Egypt, and one of the best handball players of Egypt's history", Category: "Handball"},
			{Name: "Lionel Messi", Description: "A football player from Argentina, and one of the best or maybe the best football player of all time", Category: "Football"},
		},
	}
}

// SeedResult は投入結果の件数を表す。
type SeedResult struct {
	UsersCreated      int
	CategoriesCreated int
	ItemsCreated      int
}

// Seed は初期データを単一トランザクションで投入する。
// 既に存在するユーザー（email一致）、カテゴリ、項目（名前一致）はスキップするため冪等。
func Seed(ctx context.Context, db *sql.DB, data SeedData) (*SeedResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &SeedResult{}
	now := time.Now()

	ownerID, created, err := seedOwner(ctx, tx, data, now)
	if err != nil {
		return nil, err
	}
	if created {
		result.UsersCreated++
	}

	categoryIDs := make(map[string]string, len(data.Categories))
	for _, name := range data.Categories {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, name, created_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), name, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert category %q: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.CategoriesCreated++
		}

		var id string
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM categories WHERE name = $1`, name,
		).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to read category %q: %w", name, err)
		}
		categoryIDs[name] = id
	}

	for _, item := range data.Items {
		categoryID, ok := categoryIDs[item.Category]
		if !ok {
			return nil, fmt.Errorf("seed item %q references unknown category %q", item.Name, item.Category)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, name, description, category_id, user_id, last_modification, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6)
			 ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), item.Name, item.Description, categoryID, ownerID, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert item %q: %w", item.Name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.ItemsCreated++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	return result, nil
}

// seedOwner はデモ用ユーザーを取得し、存在しなければ作成する。
func seedOwner(ctx context.Context, tx *sql.Tx, data SeedData, now time.Time) (string, bool, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE email = $1 ORDER BY created_at LIMIT 1`,
		data.OwnerEmail,
	).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("failed to find seed owner: %w", err)
	}

	id = uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, name, email, picture, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		id, data.OwnerName, data.OwnerEmail, data.OwnerPicture, now,
	); err != nil {
		return "", false, fmt.Errorf("failed to insert seed owner: %w", err)
	}
	return id, true, nil
}
