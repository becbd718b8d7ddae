package handler

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/catalog/internal/auth"
	"github.com/hitoshi/catalog/internal/middleware"
	"github.com/hitoshi/catalog/internal/model"
	"github.com/hitoshi/catalog/internal/session"
)

// maxCodeBytes は/gconnectが受け付ける認可コードの最大長。
const maxCodeBytes = 4096

// AuthHandler はGoogleサインイン関連のHTTPハンドラー。
type AuthHandler struct {
	*view
	service  AuthServiceInterface
	sessions SessionRegenerator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, sessions SessionRegenerator) *AuthHandler {
	return &AuthHandler{
		view:     &view{sessions: sessions},
		service:  service,
		sessions: sessions,
	}
}

// loginPage はログインページのデータ。
type loginPage struct {
	ClientID string
	Scope    string
	State    string
}

// messageResponse はメッセージのみのJSONレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// Login は偽造防止トークンを発行してセッションに保存し、ログインページを描画する。
// GET /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := session.FromContext(r.Context())

	token, err := session.IssueAntiForgeryToken(state)
	if err != nil {
		slog.Error("failed to issue anti-forgery token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if err := h.sessions.Save(r.Context(), w, state); err != nil {
		slog.Error("failed to save session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	cfg := h.service.LoginConfig()
	h.render(w, r, http.StatusOK, pageLogin, "Login", loginPage{
		ClientID: cfg.ClientID,
		Scope:    strings.Join(cfg.Scopes, " "),
		State:    token,
	})
}

// GConnect は認可コードを検証してユーザーをログインさせる。
// POST /gconnect?state=xxx （ボディは認可コード）
//
// 成功時はウェルカムHTML断片、既に接続済みの場合は200のJSON、失敗時はJSONエラーを返す。
func (h *AuthHandler) GConnect(w http.ResponseWriter, r *http.Request) {
	state := session.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCodeBytes))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("failed to read authorization code"))
		return
	}
	code := strings.TrimSpace(string(body))

	v, err := h.service.Connect(r.Context(), state, code, r.URL.Query().Get("state"))
	if err != nil {
		slog.Warn("google connect failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	if v.Outcome == auth.OutcomeAlreadyConnected {
		middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Current user is already connected."})
		return
	}

	// ログイン前のIDを引き継がない
	if err := h.sessions.Regenerate(r.Context(), w, state); err != nil {
		slog.Error("failed to regenerate session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	var buf bytes.Buffer
	if err := welcomeFragment.Execute(&buf, state); err != nil {
		slog.Error("failed to render welcome", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// GDisconnect はアクセストークンを失効させ、セッションから識別情報を消去する。
// GET /gdisconnect
func (h *AuthHandler) GDisconnect(w http.ResponseWriter, r *http.Request) {
	state := session.FromContext(r.Context())

	if err := h.service.Disconnect(r.Context(), state); err != nil {
		slog.Warn("google disconnect failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	if err := h.sessions.Regenerate(r.Context(), w, state); err != nil {
		slog.Error("failed to regenerate session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Successfully disconnected."})
}

// Logout はGDisconnectと同じ処理を行い、結果をフラッシュメッセージにしてトップページへ戻す。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	state := session.FromContext(r.Context())

	err := h.service.Disconnect(r.Context(), state)
	switch {
	case err == nil:
		state.AddFlash("You have successfully been logged out.")
		if err := h.sessions.Regenerate(r.Context(), w, state); err != nil {
			slog.Error("failed to regenerate session", slog.String("error", err.Error()))
		}
	case model.HasCode(err, model.ErrCodeNotAuthenticated):
		h.flash(w, r, "You were not logged in.")
	default:
		slog.Warn("logout failed", slog.String("error", err.Error()))
		_, apiErr := statusForError(err)
		if apiErr != nil {
			h.flash(w, r, apiErr.Message)
		} else {
			h.flash(w, r, "Failed to log out.")
		}
	}

	http.Redirect(w, r, "/", http.StatusFound)
}
