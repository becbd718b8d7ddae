package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/catalog/internal/catalog"
	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/ownership"
	"github.com/hitoshi/catalog/internal/session"
)

// CatalogHandler はカタログのHTMLページを扱うハンドラー。
type CatalogHandler struct {
	*view
	service CatalogServiceInterface
	users   UserServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。usersはnilでもよい。
func NewCatalogHandler(service CatalogServiceInterface, users UserServiceInterface, sessions SessionSaver) *CatalogHandler {
	return &CatalogHandler{
		view:    &view{sessions: sessions},
		service: service,
		users:   users,
	}
}

// --- ページデータ ---

type homePage struct {
	Categories []*model.Category
	Latest     []model.ItemWithCategory
}

type categoryPage struct {
	Categories []*model.Category
	Category   *model.Category
	Items      []*model.Item
}

type itemPage struct {
	Item     *model.Item
	Category *model.Category
	Owner    string
	CanEdit  bool
}

type itemFormPage struct {
	Categories   []*model.Category
	Action       string
	CancelLink   string
	Editing      bool
	Name         string
	Description  string
	CategoryName string
	Error        string
}

// Home はカテゴリ一覧と最新項目を表示する。
// GET /
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	latest, err := h.service.LatestItems(r.Context(), catalog.LatestItemsLimit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, pageHome, "Catalog", homePage{
		Categories: categories,
		Latest:     latest,
	})
}

// CategoryItems はカテゴリに属する項目一覧を表示する。
// GET /catalog/{category}/items/
func (h *CatalogHandler) CategoryItems(w http.ResponseWriter, r *http.Request) {
	category, items, err := h.service.ListItemsByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, pageCategory, category.Name, categoryPage{
		Categories: categories,
		Category:   category,
		Items:      items,
	})
}

// ItemDetail は項目の詳細を表示する。所有者には編集・削除リンクを出す。
// GET /catalog/{category}/{item}/
func (h *CatalogHandler) ItemDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetItem(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "item"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	userID := session.UserIDFromContext(r.Context())
	h.render(w, r, http.StatusOK, pageItem, detail.Item.Name, itemPage{
		Item:     detail.Item,
		Category: detail.Category,
		Owner:    h.ownerName(r, detail.Item.UserID),
		CanEdit:  ownership.Authorize(userID, detail.Item.UserID) == ownership.Allowed,
	})
}

// ownerName は項目の所有者名を返す。取得できない場合は空文字列。
func (h *CatalogHandler) ownerName(r *http.Request, ownerID string) string {
	if h.users == nil || ownerID == "" {
		return ""
	}
	owner, err := h.users.GetUser(r.Context(), ownerID)
	if err != nil {
		slog.Warn("failed to look up item owner",
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return owner.Name
}

// NewItemForm は項目作成フォームを表示する。
// GET /catalog/item/new
func (h *CatalogHandler) NewItemForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, itemFormPage{
		Action:     "/catalog/item/new",
		CancelLink: "/",
	})
}

// CreateItem は項目を作成する。
// POST /catalog/item/new
func (h *CatalogHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	in := itemInputFromForm(r)

	detail, err := h.service.CreateItem(r.Context(), session.UserIDFromContext(r.Context()), in)
	if err != nil {
		h.handleFormError(w, r, err, itemFormPage{
			Action:       "/catalog/item/new",
			CancelLink:   "/",
			Name:         in.Name,
			Description:  in.Description,
			CategoryName: in.CategoryName,
		})
		return
	}

	h.flash(w, r, fmt.Sprintf("New item %s successfully created", detail.Item.Name))
	http.Redirect(w, r, itemPath(detail.Category.Name, detail.Item.Name), http.StatusFound)
}

// EditItemForm は項目編集フォームを表示する。所有者以外には通知ページを返す。
// GET /catalog/{item}/edit
func (h *CatalogHandler) EditItemForm(w http.ResponseWriter, r *http.Request) {
	detail, ok := h.ownedItem(w, r)
	if !ok {
		return
	}

	h.renderForm(w, r, http.StatusOK, itemFormPage{
		Action:       editPath(detail.Item.Name),
		CancelLink:   itemPath(detail.Category.Name, detail.Item.Name),
		Editing:      true,
		Name:         detail.Item.Name,
		Description:  detail.Item.Description,
		CategoryName: detail.Category.Name,
	})
}

// UpdateItem は項目を更新する。
// POST /catalog/{item}/edit
func (h *CatalogHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemName := chi.URLParam(r, "item")
	in := itemInputFromForm(r)

	detail, err := h.service.UpdateItem(r.Context(), session.UserIDFromContext(r.Context()), itemName, in)
	if err != nil {
		h.handleFormError(w, r, err, itemFormPage{
			Action:       editPath(itemName),
			CancelLink:   "/",
			Editing:      true,
			Name:         in.Name,
			Description:  in.Description,
			CategoryName: in.CategoryName,
		})
		return
	}

	h.flash(w, r, fmt.Sprintf("Item %s successfully updated", detail.Item.Name))
	http.Redirect(w, r, itemPath(detail.Category.Name, detail.Item.Name), http.StatusFound)
}

// DeleteItemForm は削除確認ページを表示する。所有者以外には通知ページを返す。
// GET /catalog/{item}/delete
func (h *CatalogHandler) DeleteItemForm(w http.ResponseWriter, r *http.Request) {
	detail, ok := h.ownedItem(w, r)
	if !ok {
		return
	}

	h.render(w, r, http.StatusOK, pageItemDelete, "Delete "+detail.Item.Name, itemPage{
		Item:     detail.Item,
		Category: detail.Category,
	})
}

// DeleteItem は項目を削除する。
// POST /catalog/{item}/delete
func (h *CatalogHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemName := chi.URLParam(r, "item")

	// 削除後のリダイレクト先にカテゴリ名が必要なため先に取得する
	detail, err := h.service.FindItem(r.Context(), itemName)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	deleted, err := h.service.DeleteItem(r.Context(), session.UserIDFromContext(r.Context()), itemName)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.flash(w, r, fmt.Sprintf("Item %s successfully deleted", deleted.Name))
	http.Redirect(w, r, categoryPath(detail.Category.Name), http.StatusFound)
}

// ownedItem はURLの項目を取得し、ログインユーザーが所有者であることを確認する。
// 失敗時はレスポンスを書き込んでfalseを返す。
func (h *CatalogHandler) ownedItem(w http.ResponseWriter, r *http.Request) (*catalog.ItemDetail, bool) {
	detail, err := h.service.FindItem(r.Context(), chi.URLParam(r, "item"))
	if err != nil {
		h.renderError(w, r, err)
		return nil, false
	}

	if err := ownership.Require(session.UserIDFromContext(r.Context()), detail.Item.UserID); err != nil {
		slog.Warn("ownership check failed",
			slog.String("user_id", session.UserIDFromContext(r.Context())),
			slog.String("item_id", detail.Item.ID),
		)
		_, apiErr := statusForError(err)
		h.renderNotice(w, r, http.StatusForbidden, noticePage{
			Message:  apiErr.Message,
			Action:   apiErr.Action,
			BackLink: itemPath(detail.Category.Name, detail.Item.Name),
		})
		return nil, false
	}

	return detail, true
}

// renderForm はカテゴリの選択肢を補って項目フォームを描画する。
func (h *CatalogHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, page itemFormPage) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	page.Categories = categories

	title := "New Item"
	if page.Editing {
		title = "Edit Item"
	}
	h.render(w, r, status, pageItemForm, title, page)
}

// handleFormError は入力起因のエラーならフォームを再表示し、それ以外は通知ページを描画する。
func (h *CatalogHandler) handleFormError(w http.ResponseWriter, r *http.Request, err error, page itemFormPage) {
	status, apiErr := statusForError(err)
	if apiErr != nil && (apiErr.Code == model.ErrCodeDuplicateName || apiErr.Code == model.ErrCodeInvalidInput) {
		page.Error = apiErr.Message
		h.renderForm(w, r, status, page)
		return
	}
	h.renderError(w, r, err)
}

// itemInputFromForm はフォーム値からItemInputを組み立てる。
func itemInputFromForm(r *http.Request) catalog.ItemInput {
	return catalog.ItemInput{
		Name:         r.PostFormValue("name"),
		Description:  r.PostFormValue("description"),
		CategoryName: r.PostFormValue("category"),
	}
}
