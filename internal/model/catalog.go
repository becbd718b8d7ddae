package model

import "time"

// Category は商品カテゴリを表す。シードで投入される静的な参照データ。
type Category struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Item はカテゴリに属するカタログ項目を表す。
// UserIDは作成者（所有者）であり、編集・削除は所有者のみ可能。
type Item struct {
	ID               string
	Name             string
	Description      string
	CategoryID       string
	UserID           string
	LastModification time.Time
	CreatedAt        time.Time
}

// ItemWithCategory は項目とカテゴリ名を結合したモデル。
// トップページの最新項目一覧で使用する。
type ItemWithCategory struct {
	Item
	CategoryName string
}

// CategoryWithItems はカテゴリと所属する項目一覧を結合したモデル。
type CategoryWithItems struct {
	Category
	Items []*Item
}
