package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/catalog/internal/middleware"
	"github.com/hitoshi/catalog/internal/model"
)

// JSONHandler はカタログの読み取り専用JSONエンドポイントを提供する。
type JSONHandler struct {
	service CatalogServiceInterface
}

// NewJSONHandler はJSONHandlerを生成する。
func NewJSONHandler(service CatalogServiceInterface) *JSONHandler {
	return &JSONHandler{service: service}
}

// --- レスポンス型 ---

// itemResponse は項目のJSON表現。
type itemResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	CategoryID       string    `json:"category_id"`
	LastModification time.Time `json:"last_modification"`
}

// categoryResponse はカテゴリと所属項目のJSON表現。
type categoryResponse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Items []itemResponse `json:"items"`
}

type catalogResponse struct {
	Categories []categoryResponse `json:"categories"`
}

type itemsResponse struct {
	Items []itemResponse `json:"Items"`
}

type singleItemResponse struct {
	Item itemResponse `json:"Item"`
}

func toItemResponse(item *model.Item) itemResponse {
	return itemResponse{
		ID:               item.ID,
		Name:             item.Name,
		Description:      item.Description,
		CategoryID:       item.CategoryID,
		LastModification: item.LastModification,
	}
}

func toItemResponses(items []*model.Item) []itemResponse {
	resp := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	return resp
}

// Catalog は全カテゴリと所属項目を返す。
// GET /categories/JSON
func (h *JSONHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.CatalogTree(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := catalogResponse{Categories: make([]categoryResponse, 0, len(tree))}
	for _, c := range tree {
		resp.Categories = append(resp.Categories, categoryResponse{
			ID:    c.ID,
			Name:  c.Name,
			Items: toItemResponses(c.Items),
		})
	}
	writeJSON(w, resp)
}

// CategoryItems はカテゴリの項目一覧を返す。
// GET /catalog/{category}/items/JSON/
func (h *JSONHandler) CategoryItems(w http.ResponseWriter, r *http.Request) {
	_, items, err := h.service.ListItemsByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, itemsResponse{Items: toItemResponses(items)})
}

// Item は項目1件を返す。
// GET /catalog/{category}/{item}/JSON
func (h *JSONHandler) Item(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetItem(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "item"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, singleItemResponse{Item: toItemResponse(detail.Item)})
}

func writeJSON(w http.ResponseWriter, v any) {
	middleware.WriteJSON(w, http.StatusOK, v)
}
