package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/catalog/internal/middleware"
	"github.com/hitoshi/catalog/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページテンプレート名
const (
	pageHome       = "home"
	pageLogin      = "login"
	pageCategory   = "category"
	pageItem       = "item"
	pageItemForm   = "item_form"
	pageItemDelete = "item_delete"
	pageNotice     = "notice"
)

var templateFuncs = template.FuncMap{
	"pathEscape": url.PathEscape,
}

// pages はレイアウトと各ページを組み合わせたテンプレート。
var pages = mustParsePages(pageHome, pageLogin, pageCategory, pageItem, pageItemForm, pageItemDelete, pageNotice)

// welcomeFragment はログイン成功時にJavaScriptへ返すHTML断片。
var welcomeFragment = template.Must(template.New("welcome.html").ParseFS(templateFS, "templates/welcome.html"))

func mustParsePages(names ...string) map[string]*template.Template {
	m := make(map[string]*template.Template, len(names))
	for _, name := range names {
		m[name] = template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return m
}

// pageData はレイアウトに渡す共通データ。
type pageData struct {
	Title     string
	LoggedIn  bool
	Username  string
	Picture   string
	Flashes   []string
	CSRFToken string
	Page      any
}

// noticePage はブロッキング通知ページのデータ。
type noticePage struct {
	Message  string
	Action   string
	BackLink string
}

// view はHTMLページの描画とフラッシュメッセージを扱う。
type view struct {
	sessions SessionSaver
}

// render はページを描画する。保留中のフラッシュメッセージはここで消費する。
func (v *view) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	tmpl, ok := pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		middleware.WriteInternalServerError(w)
		return
	}

	pd := pageData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Page:      data,
	}
	if state := session.FromContext(r.Context()); state != nil {
		pd.LoggedIn = state.IsAuthenticated()
		pd.Username = state.Username
		pd.Picture = state.Picture
		if flashes := state.PopFlashes(); len(flashes) > 0 {
			pd.Flashes = flashes
			v.save(w, r, state)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", pd); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderNotice はブロッキング通知ページを描画する。
func (v *view) renderNotice(w http.ResponseWriter, r *http.Request, status int, n noticePage) {
	if n.BackLink == "" {
		n.BackLink = "/"
	}
	v.render(w, r, status, pageNotice, "Notice", n)
}

// renderError はサービス層のエラーを通知ページとして描画する。
func (v *view) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := statusForError(err)
	if apiErr == nil {
		slog.Error("unexpected service error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		v.renderNotice(w, r, status, noticePage{Message: "Something went wrong.", Action: "Please try again later."})
		return
	}
	v.renderNotice(w, r, status, noticePage{Message: apiErr.Message, Action: apiErr.Action})
}

// flash は次のページ表示用の通知を追加して保存する。
func (v *view) flash(w http.ResponseWriter, r *http.Request, msg string) {
	state := session.FromContext(r.Context())
	if state == nil {
		return
	}
	state.AddFlash(msg)
	v.save(w, r, state)
}

func (v *view) save(w http.ResponseWriter, r *http.Request, state *session.State) {
	if err := v.sessions.Save(r.Context(), w, state); err != nil {
		slog.Error("failed to save session", slog.String("error", err.Error()))
	}
}

// itemPath は項目詳細ページのパスを返す。
func itemPath(categoryName, itemName string) string {
	return "/catalog/" + url.PathEscape(categoryName) + "/" + url.PathEscape(itemName) + "/"
}

// categoryPath はカテゴリの項目一覧ページのパスを返す。
func categoryPath(categoryName string) string {
	return "/catalog/" + url.PathEscape(categoryName) + "/items/"
}

// editPath は項目編集フォームのパスを返す。
func editPath(itemName string) string {
	return "/catalog/" + url.PathEscape(itemName) + "/edit"
}
