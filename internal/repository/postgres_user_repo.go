package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/catalog/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, name, email, picture, created_at, updated_at`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Picture, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// ResolveOrCreate はemailでユーザーを検索し、存在しなければ作成する。
// pg_advisory_xact_lockでemail単位に直列化するため、
// 同一emailの同時初回ログインでもユーザーは1件しか作成されない。
func (r *PostgresUserRepo) ResolveOrCreate(ctx context.Context, user *model.User) (string, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		user.Email,
	); err != nil {
		return "", false, fmt.Errorf("failed to acquire user lock: %w", err)
	}

	existing, err := findUserByEmail(ctx, tx, user.Email)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		if err := tx.Commit(); err != nil {
			return "", false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return existing.ID, false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, name, email, picture, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.Picture, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to insert user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return user.ID, true, nil
}

// findUserByEmail はemailでユーザーを検索する。
// 複数件一致はNOT_FOUNDとして扱い、どちらかを黙って選ぶことはしない。
func findUserByEmail(ctx context.Context, q queryer, email string) (*model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 2`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Picture, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	switch len(users) {
	case 0:
		return nil, nil
	case 1:
		return users[0], nil
	default:
		return nil, model.NewNotFoundError("user", email)
	}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
