// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// パスワードはArgon2idハッシュとユーザーごとのソルトのみを保持し、
// 平文は保存しない。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	PasswordSalt []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NoticeSeverity はフラッシュ通知の種別を表す。
type NoticeSeverity string

const (
	// NoticeSuccess は成功通知。
	NoticeSuccess NoticeSeverity = "success"
	// NoticeError はエラー通知。
	NoticeError NoticeSeverity = "error"
)

// Notice はユーザーに1回だけ表示されるフラッシュ通知を表す。
// セッションのdataペイロードに保存され、次のレンダリング応答で
// 取り出されると同時にクリアされる。
type Notice struct {
	Severity NoticeSeverity `json:"severity"`
	Text     string         `json:"text"`
}

// SessionData はセッション行のdataカラムに保存される可変ペイロード。
// pending_redirectは未認証ユーザーが本来向かっていたパス、
// noticesは未表示のフラッシュ通知。
type SessionData struct {
	PendingRedirect string   `json:"pending_redirect,omitempty"`
	Notices         []Notice `json:"notices,omitempty"`
}

// Session はクライアントごとのサーバー側セッションを表す。
// 未認証クライアントの初回アクセス時に匿名セッション（UserID空）として
// 作成され、ログインで認証済みセッションに置き換わる。
type Session struct {
	ID        string
	UserID    string // 匿名セッションでは空
	Data      SessionData
	ExpiresAt time.Time
	TouchedAt time.Time
	CreatedAt time.Time
}

// IsAuthenticated はセッションがログイン済みプリンシパルを持つかを返す。
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != ""
}
