// Package ownership は項目の変更権限を判定する。
package ownership

import "github.com/hitoshi/catalog/internal/model"

// Decision は権限判定の結果。
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Authorize はセッションのユーザーが所有者本人であればAllowedを返す。
// どちらかが空の場合は常にDenied。
func Authorize(sessionUserID, ownerID string) Decision {
	if sessionUserID == "" || ownerID == "" {
		return Denied
	}
	if sessionUserID != ownerID {
		return Denied
	}
	return Allowed
}

// Require はAuthorizeがDeniedの場合にNOT_OWNERエラーを返す。
func Require(sessionUserID, ownerID string) error {
	if Authorize(sessionUserID, ownerID) == Denied {
		return model.NewNotOwnerError()
	}
	return nil
}
