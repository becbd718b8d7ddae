package catalog

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/repository"
	"github.com/hitoshi/catalog/internal/security"
)

// --- インメモリのリポジトリ ---

type memoryCategoryRepo struct {
	categories []*model.Category
	listErr    error
}

func (r *memoryCategoryRepo) List(_ context.Context) ([]*model.Category, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.categories, nil
}

func (r *memoryCategoryRepo) FindByName(_ context.Context, name string) (*model.Category, error) {
	for _, c := range r.categories {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, model.NewNotFoundError("category", name)
}

func (r *memoryCategoryRepo) FindByID(_ context.Context, id string) (*model.Category, error) {
	for _, c := range r.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, model.NewNotFoundError("category", id)
}

// memoryItemRepo はPostgresItemRepoと同じ一意性・所有者スコープを再現する。
type memoryItemRepo struct {
	items map[string]*model.Item // key: id
}

func newMemoryItemRepo() *memoryItemRepo {
	return &memoryItemRepo{items: map[string]*model.Item{}}
}

func (r *memoryItemRepo) sorted(filter func(*model.Item) bool) []*model.Item {
	var out []*model.Item
	for _, it := range r.items {
		if filter(it) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *memoryItemRepo) ListAll(_ context.Context) ([]*model.Item, error) {
	return r.sorted(func(*model.Item) bool { return true }), nil
}

func (r *memoryItemRepo) ListByCategory(_ context.Context, categoryID string) ([]*model.Item, error) {
	return r.sorted(func(it *model.Item) bool { return it.CategoryID == categoryID }), nil
}

func (r *memoryItemRepo) ListLatest(_ context.Context, limit int) ([]model.ItemWithCategory, error) {
	all := r.sorted(func(*model.Item) bool { return true })
	sort.Slice(all, func(i, j int) bool { return all[i].LastModification.After(all[j].LastModification) })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]model.ItemWithCategory, 0, len(all))
	for _, it := range all {
		out = append(out, model.ItemWithCategory{Item: *it})
	}
	return out, nil
}

func (r *memoryItemRepo) FindByName(_ context.Context, name string) (*model.Item, error) {
	found := r.sorted(func(it *model.Item) bool { return it.Name == name })
	if len(found) != 1 {
		return nil, model.NewNotFoundError("item", name)
	}
	return found[0], nil
}

func (r *memoryItemRepo) FindByCategoryAndName(_ context.Context, categoryID, name string) (*model.Item, error) {
	found := r.sorted(func(it *model.Item) bool { return it.CategoryID == categoryID && it.Name == name })
	if len(found) != 1 {
		return nil, model.NewNotFoundError("item", name)
	}
	return found[0], nil
}

func (r *memoryItemRepo) nameTaken(name, exceptID string) bool {
	for _, it := range r.items {
		if it.Name == name && it.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *memoryItemRepo) Create(_ context.Context, item *model.Item) error {
	if r.nameTaken(item.Name, "") {
		return model.NewDuplicateNameError(item.Name)
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memoryItemRepo) UpdateOwned(_ context.Context, item *model.Item, ownerID string) error {
	existing, ok := r.items[item.ID]
	if !ok || existing.UserID != ownerID {
		return model.NewNotFoundError("item", item.Name)
	}
	if r.nameTaken(item.Name, item.ID) {
		return model.NewDuplicateNameError(item.Name)
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memoryItemRepo) DeleteOwned(_ context.Context, id, ownerID string) error {
	existing, ok := r.items[id]
	if !ok || existing.UserID != ownerID {
		return model.NewNotFoundError("item", id)
	}
	delete(r.items, id)
	return nil
}

var _ repository.CategoryRepository = (*memoryCategoryRepo)(nil)
var _ repository.ItemRepository = (*memoryItemRepo)(nil)

type recordingMetrics struct {
	calls []string
}

func (r *recordingMetrics) RecordItemMutation(operation, result string) {
	r.calls = append(r.calls, operation+":"+result)
}

// --- ヘルパー ---

const (
	userA = "user-a"
	userB = "user-b"
)

func newTestService() (*Service, *memoryItemRepo, *recordingMetrics) {
	categories := &memoryCategoryRepo{categories: []*model.Category{
		{ID: "cat-basketball", Name: "Basketball"},
		{ID: "cat-football", Name: "Football"},
		{ID: "cat-tennis", Name: "Tennis"},
	}}
	items := newMemoryItemRepo()
	metrics := &recordingMetrics{}
	svc := NewService(categories, items, security.NewTextSanitizer(), metrics)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc, items, metrics
}

// --- テスト ---

func TestCreateItem_Success(t *testing.T) {
	svc, _, metrics := newTestService()
	ctx := context.Background()

	detail, err := svc.CreateItem(ctx, userA, ItemInput{Name: "Ball", Description: "round", CategoryName: "Football"})
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if detail.Item.UserID != userA || detail.Category.Name != "Football" || detail.Item.ID == "" {
		t.Errorf("CreateItem() = %+v / %+v", detail.Item, detail.Category)
	}

	got, err := svc.GetItem(ctx, "Football", "Ball")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got.Item.Description != "round" {
		t.Errorf("Description = %q", got.Item.Description)
	}
	if len(metrics.calls) != 1 || metrics.calls[0] != "create:ok" {
		t.Errorf("metrics = %v", metrics.calls)
	}
}

func TestCreateItem_DuplicateNameInAnyCategory(t *testing.T) {
	svc, _, metrics := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, userA, ItemInput{Name: "Ball", CategoryName: "Football"}); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}

	for _, category := range []string{"Football", "Tennis"} {
		_, err := svc.CreateItem(ctx, userB, ItemInput{Name: "Ball", CategoryName: category})
		if !model.HasCode(err, model.ErrCodeDuplicateName) {
			t.Errorf("category %s: err = %v, want DUPLICATE_NAME", category, err)
		}
	}
	if last := metrics.calls[len(metrics.calls)-1]; last != "create:DUPLICATE_NAME" {
		t.Errorf("metrics last = %q", last)
	}
}

func TestCreateItem_Validation(t *testing.T) {
	svc, items, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name    string
		owner   string
		in      ItemInput
		wantErr string
	}{
		{"anonymous", "", ItemInput{Name: "Ball", CategoryName: "Football"}, model.ErrCodeNotAuthenticated},
		{"empty name", userA, ItemInput{Name: "  ", CategoryName: "Football"}, model.ErrCodeInvalidInput},
		{"markup only name", userA, ItemInput{Name: "<script>x</script>", CategoryName: "Football"}, model.ErrCodeInvalidInput},
		{"missing category", userA, ItemInput{Name: "Ball"}, model.ErrCodeInvalidInput},
		{"unknown category", userA, ItemInput{Name: "Ball", CategoryName: "Rugby"}, model.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateItem(ctx, tt.owner, tt.in)
			if !model.HasCode(err, tt.wantErr) {
				t.Errorf("err = %v, want %s", err, tt.wantErr)
			}
		})
	}

	if len(items.items) != 0 {
		t.Errorf("items = %d, want 0", len(items.items))
	}
}

func TestCreateItem_RejectsMarkupInsteadOfTruncating(t *testing.T) {
	tests := []struct {
		name string
		in   ItemInput
	}{
		{"tag in name", ItemInput{Name: " <b>Ball</b> ", CategoryName: "Football"}},
		{"less-than in name", ItemInput{Name: "a<b", CategoryName: "Football"}},
		{"bracketed word in name", ItemInput{Name: "x<y>z", CategoryName: "Football"}},
		{"script in description", ItemInput{Name: "Ball", Description: `Round<script>alert("x")</script>`, CategoryName: "Football"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, items, _ := newTestService()

			_, err := svc.CreateItem(context.Background(), userA, tt.in)
			if !model.HasCode(err, model.ErrCodeInvalidInput) {
				t.Fatalf("CreateItem() err = %v, want INVALID_INPUT", err)
			}
			if len(items.items) != 0 {
				t.Errorf("items = %d, want 0", len(items.items))
			}
		})
	}
}

func TestCreateItem_KeepsPlainText(t *testing.T) {
	svc, _, _ := newTestService()

	detail, err := svc.CreateItem(context.Background(), userA, ItemInput{
		Name:         "  Tom & Jerry ball ",
		Description:  `the "king" of clay > rest`,
		CategoryName: "Football",
	})
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if detail.Item.Name != "Tom & Jerry ball" {
		t.Errorf("Name = %q, want %q", detail.Item.Name, "Tom & Jerry ball")
	}
	if detail.Item.Description != `the "king" of clay > rest` {
		t.Errorf("Description = %q", detail.Item.Description)
	}
}

func TestUpdateItem_ByOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, userA, ItemInput{Name: "Ball", Description: "old", CategoryName: "Football"})
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}

	updated, err := svc.UpdateItem(ctx, userA, "Ball", ItemInput{Name: "Racket", Description: "new", CategoryName: "Tennis"})
	if err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if updated.Item.ID != created.Item.ID {
		t.Error("更新でIDが変わった")
	}
	if !updated.Item.LastModification.After(created.Item.LastModification) {
		t.Error("last_modificationが更新されていない")
	}

	if _, err := svc.GetItem(ctx, "Football", "Ball"); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("旧名での取得 err = %v, want NOT_FOUND", err)
	}
	got, err := svc.GetItem(ctx, "Tennis", "Racket")
	if err != nil || got.Item.Description != "new" {
		t.Errorf("GetItem() = (%+v, %v)", got, err)
	}
}

func TestUpdateItem_OtherUserIsNotOwnerAndItemUnchanged(t *testing.T) {
	svc, _, metrics := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, userA, ItemInput{Name: "Ball", Description: "A's ball", CategoryName: "Football"}); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}

	_, err := svc.UpdateItem(ctx, userB, "Ball", ItemInput{Name: "Stolen", Description: "B", CategoryName: "Tennis"})
	if !model.HasCode(err, model.ErrCodeNotOwner) {
		t.Fatalf("err = %v, want NOT_OWNER", err)
	}

	got, err := svc.GetItem(ctx, "Football", "Ball")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got.Item.Description != "A's ball" || got.Item.UserID != userA {
		t.Errorf("項目が変更された: %+v", got.Item)
	}
	if last := metrics.calls[len(metrics.calls)-1]; last != "update:NOT_OWNER" {
		t.Errorf("metrics last = %q", last)
	}
}

func TestUpdateItem_RenameToExistingName(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.CreateItem(ctx, userA, ItemInput{Name: "Ball", CategoryName: "Football"})
	svc.CreateItem(ctx, userA, ItemInput{Name: "Racket", CategoryName: "Tennis"})

	_, err := svc.UpdateItem(ctx, userA, "Racket", ItemInput{Name: "Ball", CategoryName: "Tennis"})
	if !model.HasCode(err, model.ErrCodeDuplicateName) {
		t.Errorf("err = %v, want DUPLICATE_NAME", err)
	}
}

func TestUpdateItem_Missing(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.UpdateItem(context.Background(), userA, "Nope", ItemInput{Name: "x", CategoryName: "Football"})
	if !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestDeleteItem_ThenGetIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.CreateItem(ctx, userA, ItemInput{Name: "Ball", CategoryName: "Football"})

	deleted, err := svc.DeleteItem(ctx, userA, "Ball")
	if err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	if deleted.Name != "Ball" {
		t.Errorf("deleted = %+v", deleted)
	}

	if _, err := svc.GetItem(ctx, "Football", "Ball"); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestDeleteItem_OtherUser(t *testing.T) {
	svc, items, _ := newTestService()
	ctx := context.Background()

	svc.CreateItem(ctx, userA, ItemInput{Name: "Ball", CategoryName: "Football"})

	_, err := svc.DeleteItem(ctx, userB, "Ball")
	if !model.HasCode(err, model.ErrCodeNotOwner) {
		t.Errorf("err = %v, want NOT_OWNER", err)
	}
	if len(items.items) != 1 {
		t.Error("他ユーザーによって項目が削除された")
	}

	if _, err := svc.DeleteItem(ctx, "", "Ball"); !model.HasCode(err, model.ErrCodeNotAuthenticated) {
		t.Errorf("anonymous err = %v, want NOT_AUTHENTICATED", err)
	}
}

func TestListItemsByCategory(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.CreateItem(ctx, userA, ItemInput{Name: "Messi", CategoryName: "Football"})
	svc.CreateItem(ctx, userA, ItemInput{Name: "Nadal", CategoryName: "Tennis"})
	svc.CreateItem(ctx, userA, ItemInput{Name: "Kaka", CategoryName: "Football"})

	category, items, err := svc.ListItemsByCategory(ctx, "Football")
	if err != nil {
		t.Fatalf("ListItemsByCategory() error = %v", err)
	}
	if category.Name != "Football" || len(items) != 2 || items[0].Name != "Kaka" || items[1].Name != "Messi" {
		t.Errorf("ListItemsByCategory() = %v, %+v", category.Name, items)
	}

	if _, _, err := svc.ListItemsByCategory(ctx, "Rugby"); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestLatestItems(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, n := range names {
		if _, err := svc.CreateItem(ctx, userA, ItemInput{Name: n, CategoryName: "Football"}); err != nil {
			t.Fatalf("CreateItem(%s) error = %v", n, err)
		}
	}

	latest, err := svc.LatestItems(ctx, 0)
	if err != nil {
		t.Fatalf("LatestItems() error = %v", err)
	}
	if len(latest) != LatestItemsLimit {
		t.Fatalf("len = %d, want %d", len(latest), LatestItemsLimit)
	}
	if latest[0].Name != "h" || latest[5].Name != "c" {
		t.Errorf("order = %s..%s, want h..c", latest[0].Name, latest[5].Name)
	}
}

func TestCatalogTree(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.CreateItem(ctx, userA, ItemInput{Name: "Messi", CategoryName: "Football"})
	svc.CreateItem(ctx, userA, ItemInput{Name: "Nadal", CategoryName: "Tennis"})

	tree, err := svc.CatalogTree(ctx)
	if err != nil {
		t.Fatalf("CatalogTree() error = %v", err)
	}
	if len(tree) != 3 {
		t.Fatalf("len = %d, want 3", len(tree))
	}
	if tree[0].Name != "Basketball" || tree[0].Items == nil || len(tree[0].Items) != 0 {
		t.Errorf("空カテゴリは空スライスを持つべき: %+v", tree[0])
	}
	if len(tree[1].Items) != 1 || tree[1].Items[0].Name != "Messi" {
		t.Errorf("Football = %+v", tree[1].Items)
	}
}

func TestCatalogTree_RepoError(t *testing.T) {
	categories := &memoryCategoryRepo{listErr: errors.New("db down")}
	svc := NewService(categories, newMemoryItemRepo(), security.NewTextSanitizer(), nil)

	if _, err := svc.CatalogTree(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestFindItem(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.CreateItem(ctx, userA, ItemInput{Name: "Nadal", CategoryName: "Tennis"})

	detail, err := svc.FindItem(ctx, "Nadal")
	if err != nil {
		t.Fatalf("FindItem() error = %v", err)
	}
	if detail.Category.Name != "Tennis" {
		t.Errorf("Category = %q, want Tennis", detail.Category.Name)
	}

	if _, err := svc.FindItem(ctx, "Federer"); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
