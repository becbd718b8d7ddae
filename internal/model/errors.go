// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAntiForgeryMismatch  = "ANTI_FORGERY_MISMATCH"
	ErrCodeCodeExchangeFailed   = "CODE_EXCHANGE_FAILED"
	ErrCodeTokenInvalid         = "TOKEN_INVALID"
	ErrCodeTokenSubjectMismatch = "TOKEN_SUBJECT_MISMATCH"
	ErrCodeAudienceMismatch     = "AUDIENCE_MISMATCH"
	ErrCodeRevokeFailed         = "REVOKE_FAILED"
	ErrCodeNotAuthenticated     = "NOT_AUTHENTICATED"
	ErrCodeNotOwner             = "NOT_OWNER"
	ErrCodeDuplicateName        = "DUPLICATE_NAME"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInvalidInput         = "INVALID_INPUT"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかどうかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewAntiForgeryMismatchError はstateトークン不一致エラーを生成する。
func NewAntiForgeryMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeAntiForgeryMismatch,
		Message:  "Invalid state parameter.",
		Category: "auth",
		Action:   "Reload the login page and sign in again.",
	}
}

// NewCodeExchangeFailedError は認可コードの交換失敗エラーを生成する。
func NewCodeExchangeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeExchangeFailed,
		Message:  "Failed to upgrade the authorization code.",
		Category: "auth",
		Action:   "Sign in again; authorization codes are single use and expire quickly.",
	}
}

// NewTokenInvalidError はIdPが報告したアクセストークンのエラーを生成する。
func NewTokenInvalidError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  reason,
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewTokenSubjectMismatchError はトークンのsubjectが一致しない場合のエラーを生成する。
func NewTokenSubjectMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenSubjectMismatch,
		Message:  "Token's user ID doesn't match given user ID.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewAudienceMismatchError はトークンの発行先クライアントが異なる場合のエラーを生成する。
func NewAudienceMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeAudienceMismatch,
		Message:  "Token's client ID does not match app's.",
		Category: "auth",
		Action:   "Sign in from this application's login page.",
	}
}

// NewRevokeFailedError はトークン失効に失敗した場合のエラーを生成する。
func NewRevokeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRevokeFailed,
		Message:  "Failed to revoke token for given user.",
		Category: "auth",
		Action:   "Try signing out again later.",
	}
}

// NewNotAuthenticatedError は未ログインエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "Current user not connected.",
		Category: "auth",
		Action:   "Sign in first.",
	}
}

// NewNotOwnerError は所有者以外による変更操作のエラーを生成する。
func NewNotOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  "You are not authorized to change this catalog item.",
		Category: "auth",
		Action:   "Please create your own items in order to edit them.",
	}
}

// NewDuplicateNameError は項目名の重複エラーを生成する。
func NewDuplicateNameError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateName,
		Message:  fmt.Sprintf("This item name already exists: %s", name),
		Category: "validation",
		Action:   "Choose a different item name.",
	}
}

// NewNotFoundError は名前による検索が0件または複数件一致した場合のエラーを生成する。
func NewNotFoundError(kind, name string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind, name),
		Category: "catalog",
		Action:   "Check the name and try again.",
	}
}

// NewInvalidInputError は入力値のバリデーションエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  reason,
		Category: "validation",
		Action:   "Fix the highlighted fields and submit again.",
	}
}
