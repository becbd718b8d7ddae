// Package user はローカルユーザーの解決と参照を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/repository"
)

// Directory はユーザーディレクトリのサービス層。
type Directory struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewDirectory はDirectoryの新しいインスタンスを生成する。
func NewDirectory(userRepo repository.UserRepository) *Directory {
	return &Directory{userRepo: userRepo, now: time.Now}
}

// ResolveOrCreate はemailでユーザーを検索し、存在しなければ作成してIDを返す。
// 同一emailに対して何度呼んでも同じIDを返す。
func (d *Directory) ResolveOrCreate(ctx context.Context, identity model.Identity) (string, error) {
	email := strings.TrimSpace(identity.Email)
	if email == "" {
		return "", model.NewInvalidInputError("email is required")
	}

	now := d.now()
	id, created, err := d.userRepo.ResolveOrCreate(ctx, &model.User{
		ID:        uuid.New().String(),
		Name:      identity.Name,
		Email:     email,
		Picture:   identity.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("ユーザーの解決に失敗しました: %w", err)
	}

	if created {
		slog.Info("new user created",
			slog.String("user_id", id),
			slog.String("email", email),
		)
	}
	return id, nil
}

// GetUser は指定IDのユーザーを返す。存在しない場合はNOT_FOUNDエラーを返す。
func (d *Directory) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := d.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewNotFoundError("user", id)
	}
	return u, nil
}
