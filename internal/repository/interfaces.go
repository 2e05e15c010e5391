// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/yadoman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// ユーザー名またはメールアドレスが重複している場合はErrDuplicateUserを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// バッキングストア（1行=1セッション）がセッションキーごとの
// 読み書き直列化を保証する。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// UpdateData はセッションのdataペイロードを書き換える。
	// pending_redirectの記録とフラッシュ通知の保存・クリアに使う。
	UpdateData(ctx context.Context, id string, data model.SessionData) error

	// Touch はセッションの有効期限をexpiresAtへ延長し、touched_atを更新する。
	Touch(ctx context.Context, id string, expiresAt time.Time) error

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ListingRepository はリスティングデータの永続化インターフェース。
type ListingRepository interface {
	// FindByID は指定IDのリスティングを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Listing, error)

	// List は全リスティングをcreated_at降順で返す。
	List(ctx context.Context) ([]*model.Listing, error)

	// Create はリスティングを作成する。
	Create(ctx context.Context, listing *model.Listing) error

	// Update はリスティングの編集可能フィールドを更新する。
	// 対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, listing *model.Listing) (bool, error)

	// DeleteByID は指定IDのリスティングを削除する。
	// 関連するreviewsはCASCADE削除される。対象が存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// ReviewRepository はレビューデータの永続化インターフェース。
type ReviewRepository interface {
	// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Review, error)

	// ListByListingID はリスティングのレビュー一覧をcreated_at昇順で返す。
	ListByListingID(ctx context.Context, listingID string) ([]*model.Review, error)

	// Create はレビューを作成する。
	Create(ctx context.Context, review *model.Review) error

	// DeleteByID は指定IDのレビューを削除する。対象が存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)
}
