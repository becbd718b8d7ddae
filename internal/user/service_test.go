package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.User, error)
	resolveOrCreateFn func(ctx context.Context, user *model.User) (string, bool, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) ResolveOrCreate(ctx context.Context, user *model.User) (string, bool, error) {
	if m.resolveOrCreateFn != nil {
		return m.resolveOrCreateFn(ctx, user)
	}
	return user.ID, true, nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

// memoryUserRepo はemail単位でユーザーを保持するインメモリ実装。
type memoryUserRepo struct {
	mockUserRepo
	byEmail map[string]*model.User
}

func newMemoryUserRepo() *memoryUserRepo {
	r := &memoryUserRepo{byEmail: map[string]*model.User{}}
	r.resolveOrCreateFn = func(_ context.Context, u *model.User) (string, bool, error) {
		if existing, ok := r.byEmail[u.Email]; ok {
			return existing.ID, false, nil
		}
		r.byEmail[u.Email] = u
		return u.ID, true, nil
	}
	return r
}

// --- テスト ---

func TestResolveOrCreate_IsIdempotentPerEmail(t *testing.T) {
	repo := newMemoryUserRepo()
	dir := NewDirectory(repo)
	ctx := context.Background()

	first, err := dir.ResolveOrCreate(ctx, model.Identity{Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	second, err := dir.ResolveOrCreate(ctx, model.Identity{Name: "Alice B.", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}

	if first == "" || first != second {
		t.Errorf("ids = (%q, %q), want equal and non-empty", first, second)
	}
	if len(repo.byEmail) != 1 {
		t.Errorf("users = %d, want 1", len(repo.byEmail))
	}
}

func TestResolveOrCreate_PassesProfile(t *testing.T) {
	var got *model.User
	repo := &mockUserRepo{
		resolveOrCreateFn: func(_ context.Context, u *model.User) (string, bool, error) {
			got = u
			return u.ID, true, nil
		},
	}

	_, err := NewDirectory(repo).ResolveOrCreate(context.Background(),
		model.Identity{Subject: "111", Name: "Alice", Email: " alice@example.com ", Picture: "pic"})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if got.Name != "Alice" || got.Email != "alice@example.com" || got.Picture != "pic" {
		t.Errorf("user = %+v", got)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Error("IDまたは作成日時が設定されていない")
	}
}

func TestResolveOrCreate_EmptyEmail(t *testing.T) {
	repo := &mockUserRepo{
		resolveOrCreateFn: func(_ context.Context, _ *model.User) (string, bool, error) {
			t.Error("リポジトリが呼ばれた")
			return "", false, nil
		},
	}

	_, err := NewDirectory(repo).ResolveOrCreate(context.Background(), model.Identity{Name: "x"})
	if !model.HasCode(err, model.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}

func TestResolveOrCreate_RepoError(t *testing.T) {
	repo := &mockUserRepo{
		resolveOrCreateFn: func(_ context.Context, _ *model.User) (string, bool, error) {
			return "", false, errors.New("db down")
		},
	}

	if _, err := NewDirectory(repo).ResolveOrCreate(context.Background(), model.Identity{Email: "a@example.com"}); err == nil {
		t.Error("expected error")
	}
}

func TestGetUser(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			if id == "user-1" {
				return &model.User{ID: id, Name: "Alice"}, nil
			}
			return nil, nil
		},
	}
	dir := NewDirectory(repo)

	u, err := dir.GetUser(context.Background(), "user-1")
	if err != nil || u.Name != "Alice" {
		t.Errorf("GetUser() = (%+v, %v)", u, err)
	}

	_, err = dir.GetUser(context.Background(), "missing")
	if !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
