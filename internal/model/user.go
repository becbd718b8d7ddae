// Package model はドメインモデルを定義する。
package model

import "time"

// User はカタログを利用するユーザーを表す。
// メールアドレスは慣習上一意だが、DB制約としては強制しない。
type User struct {
	ID        string
	Name      string
	Email     string
	Picture   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPで検証済みのユーザー情報を表す。
// ユーザーディレクトリでローカルユーザーに解決される。
type Identity struct {
	Subject string
	Name    string
	Email   string
	Picture string
}

// SessionState はブラウザセッションに紐づく状態を表す。
// 文字列キーの辞書ではなく、名前付きのフィールドで保持する。
type SessionState struct {
	ID string `json:"-"`

	// StateToken はログイン試行ごとの偽造防止トークン。
	StateToken string `json:"state_token,omitempty"`

	// 外部IdPから取得した識別情報
	AccessToken string `json:"access_token,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	Picture     string `json:"picture,omitempty"`

	// UserID は解決済みのローカルユーザーID。
	UserID string `json:"user_id,omitempty"`

	// Flashes は次回表示するユーザー向け通知。
	Flashes []string `json:"flashes,omitempty"`

	ExpiresAt time.Time `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// IsAuthenticated はローカルユーザーIDが解決済みかどうかを返す。
func (s *SessionState) IsAuthenticated() bool {
	return s != nil && s.UserID != ""
}

// IsConnected は外部IdPのアクセストークンを保持しているかどうかを返す。
func (s *SessionState) IsConnected() bool {
	return s != nil && s.AccessToken != ""
}

// SetIdentity は検証済みの外部識別情報をセッションに保存する。
func (s *SessionState) SetIdentity(accessToken string, identity Identity) {
	s.AccessToken = accessToken
	s.Subject = identity.Subject
	s.Username = identity.Name
	s.Email = identity.Email
	s.Picture = identity.Picture
}

// Teardown は識別情報に関するフィールドをすべて消去する。
// 以降のリクエストは匿名として扱われる。
func (s *SessionState) Teardown() {
	s.AccessToken = ""
	s.Subject = ""
	s.Username = ""
	s.Email = ""
	s.Picture = ""
	s.UserID = ""
}

// AddFlash は次回のページ表示で出す通知を追加する。
func (s *SessionState) AddFlash(msg string) {
	s.Flashes = append(s.Flashes, msg)
}

// PopFlashes は保留中の通知を取り出して消去する。
func (s *SessionState) PopFlashes() []string {
	flashes := s.Flashes
	s.Flashes = nil
	return flashes
}
