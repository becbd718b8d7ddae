package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Key はセッション状態のフィールド名。
type Key string

const (
	KeyStateToken  Key = "state"
	KeyAccessToken Key = "access_token"
	KeySubject     Key = "gplus_id"
	KeyUsername    Key = "username"
	KeyEmail       Key = "email"
	KeyPicture     Key = "picture"
	KeyUserID      Key = "user_id"
	KeyFlashes     Key = "flashes"
)

// Clear は指定したキーのフィールドを空にする。未知のキーは無視する。
func Clear(state *State, keys ...Key) {
	for _, k := range keys {
		switch k {
		case KeyStateToken:
			state.StateToken = ""
		case KeyAccessToken:
			state.AccessToken = ""
		case KeySubject:
			state.Subject = ""
		case KeyUsername:
			state.Username = ""
		case KeyEmail:
			state.Email = ""
		case KeyPicture:
			state.Picture = ""
		case KeyUserID:
			state.UserID = ""
		case KeyFlashes:
			state.Flashes = nil
		}
	}
}

const (
	antiForgeryAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	antiForgeryLength   = 32
)

// IssueAntiForgeryToken はログイン試行用のstateトークンを生成し、セッションに保存する。
func IssueAntiForgeryToken(state *State) (string, error) {
	size := big.NewInt(int64(len(antiForgeryAlphabet)))
	buf := make([]byte, antiForgeryLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("failed to generate anti-forgery token: %w", err)
		}
		buf[i] = antiForgeryAlphabet[n.Int64()]
	}

	state.StateToken = string(buf)
	return state.StateToken, nil
}
