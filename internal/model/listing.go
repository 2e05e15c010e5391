package model

import "time"

// Listing は宿泊施設のリスティングを表す。
// OwnerIDのプリンシパルのみが更新・削除を行える。
type Listing struct {
	ID            string
	Title         string
	Description   string
	ImageURL      string
	ImageFilename string
	Price         int64 // 1泊あたりの価格（円）
	Location      string
	Country       string
	OwnerID       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Review はリスティングに対するレビューを表す。
// ListingIDが親リスティングへのリンクで、リスティングのレビュー一覧は
// created_at昇順の順序付きコレクションとして扱う。
// AuthorIDのプリンシパルのみが削除を行える。
type Review struct {
	ID        string
	ListingID string
	AuthorID  string
	Rating    int // 1〜5
	Comment   string
	CreatedAt time.Time
}
