// Package session はサーバー側セッションのライフサイクル管理を提供する。
// セッション本体はPostgreSQLの1行で、HttpOnly Cookieがそのキーを運ぶ。
// pending_redirect（ログイン後の戻り先）とフラッシュ通知はセッションの
// dataペイロードとして保存する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/repository"
)

// CookieName はセッションIDを運ぶCookieの名前。
const CookieName = "session_id"

// Options はManagerの設定。
type Options struct {
	MaxAge        time.Duration // 絶対有効期間（7日）
	TouchInterval time.Duration // アイドルリフレッシュ間隔（24時間）
	CookieSecure  bool
	CookieDomain  string
}

// Manager はセッションの発行・解決・破棄とdataペイロードの読み書きを提供する。
type Manager struct {
	repo repository.SessionRepository
	opts Options
}

// NewManager はManagerを生成する。
func NewManager(repo repository.SessionRepository, opts Options) *Manager {
	return &Manager{repo: repo, opts: opts}
}

// Issue は新しいセッションを発行して永続化する。
// userIDが空の場合は匿名セッションとなる。
func (m *Manager) Issue(ctx context.Context, userID string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(m.opts.MaxAge),
		TouchedAt: now,
		CreatedAt: now,
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Resolve はリクエストのCookieからセッションを解決する。
// Cookieが無い・セッションが見つからない・期限切れの場合はnilを返す。
// touched_atがTouchInterval以上前の場合は有効期限を延長する
// （アイドルリフレッシュ。リクエストごとの書き込みは避ける）。
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (*model.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	session, err := m.repo.FindByID(ctx, cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if time.Since(session.TouchedAt) >= m.opts.TouchInterval {
		newExpiry := time.Now().Add(m.opts.MaxAge)
		if err := m.repo.Touch(ctx, session.ID, newExpiry); err != nil {
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
		session.ExpiresAt = newExpiry
		session.TouchedAt = time.Now()
	}

	return session, nil
}

// Destroy はセッションを削除する。
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := m.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SetPendingRedirect は未認証ユーザーの本来の行き先を記録する。
// 後勝ち（last write wins）でスタックしない。
func (m *Manager) SetPendingRedirect(ctx context.Context, session *model.Session, path string) error {
	session.Data.PendingRedirect = path
	return m.saveData(ctx, session)
}

// PendingRedirect は記録済みの行き先を返す（クリアはしない）。
// クリアはログイン成功時の匿名セッション破棄が兼ねる。
func (m *Manager) PendingRedirect(session *model.Session) string {
	if session == nil {
		return ""
	}
	return session.Data.PendingRedirect
}

// AddNotice はフラッシュ通知を追加する。
func (m *Manager) AddNotice(ctx context.Context, session *model.Session, notice model.Notice) error {
	session.Data.Notices = append(session.Data.Notices, notice)
	return m.saveData(ctx, session)
}

// PopNotices は未表示のフラッシュ通知を取り出し、セッションからクリアする。
// 通知はちょうど1回のレンダリング応答でのみ表示される。
func (m *Manager) PopNotices(ctx context.Context, session *model.Session) ([]model.Notice, error) {
	if session == nil || len(session.Data.Notices) == 0 {
		return nil, nil
	}

	notices := session.Data.Notices
	session.Data.Notices = nil
	if err := m.saveData(ctx, session); err != nil {
		return nil, err
	}
	return notices, nil
}

// SetCookie はセッションCookieをクライアントへ発行する。
func (m *Manager) SetCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   m.opts.CookieDomain,
		MaxAge:   int(m.opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie はセッションCookieをクライアントから削除する。
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.opts.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) saveData(ctx context.Context, session *model.Session) error {
	if err := m.repo.UpdateData(ctx, session.ID, session.Data); err != nil {
		return fmt.Errorf("failed to save session data: %w", err)
	}
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
