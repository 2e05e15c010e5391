package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/hitoshi/yadoman/internal/middleware"
	"github.com/hitoshi/yadoman/internal/model"
)

// --- 共通モック定義 ---

// mockSessionManager はSessionManagerInterfaceのモック実装。
// 呼び出しを記録し、アサーションに使う。
type mockSessionManager struct {
	issueFn         func(ctx context.Context, userID string) (*model.Session, error)
	destroyFn       func(ctx context.Context, sessionID string) error
	popNoticesFn    func(ctx context.Context, session *model.Session) ([]model.Notice, error)
	pendingRedirect string

	issued         []*model.Session
	destroyedIDs   []string
	addedNotices   []model.Notice
	cookiesSet     int
	cookiesCleared int
}

func (m *mockSessionManager) Issue(ctx context.Context, userID string) (*model.Session, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, userID)
	}
	session := &model.Session{
		ID:        fmt.Sprintf("session-new-%d", len(m.issued)+1),
		UserID:    userID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	m.issued = append(m.issued, session)
	return session, nil
}

func (m *mockSessionManager) Destroy(ctx context.Context, sessionID string) error {
	m.destroyedIDs = append(m.destroyedIDs, sessionID)
	if m.destroyFn != nil {
		return m.destroyFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionManager) PendingRedirect(session *model.Session) string {
	return m.pendingRedirect
}

func (m *mockSessionManager) AddNotice(ctx context.Context, session *model.Session, notice model.Notice) error {
	m.addedNotices = append(m.addedNotices, notice)
	return nil
}

func (m *mockSessionManager) PopNotices(ctx context.Context, session *model.Session) ([]model.Notice, error) {
	if m.popNoticesFn != nil {
		return m.popNoticesFn(ctx, session)
	}
	return nil, nil
}

func (m *mockSessionManager) SetCookie(w http.ResponseWriter, session *model.Session) {
	m.cookiesSet++
}

func (m *mockSessionManager) ClearCookie(w http.ResponseWriter) {
	m.cookiesCleared++
}

var _ SessionManagerInterface = (*mockSessionManager)(nil)

// --- リクエスト構築ヘルパー ---

// anonymousSession は匿名セッションを生成する。
func anonymousSession(id string) *model.Session {
	return &model.Session{
		ID:        id,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

// authedSession は認証済みセッションを生成する。
func authedSession(id, userID string) *model.Session {
	return &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

// withSession はリクエストコンテキストにセッションを注入する。
// 認証済みセッションの場合はユーザーIDも注入する。
func withSession(req *http.Request, session *model.Session) *http.Request {
	ctx := middleware.ContextWithSession(req.Context(), session)
	if session.IsAuthenticated() {
		ctx = middleware.ContextWithUserID(ctx, session.UserID)
	}
	return req.WithContext(ctx)
}

// assertRedirect は303 See Otherと行き先を検証する。
func assertRedirect(t interface {
	Helper()
	Errorf(format string, args ...any)
}, w *httptest.ResponseRecorder, wantLocation string) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if got := w.Header().Get("Location"); got != wantLocation {
		t.Errorf("Location = %q, want %q", got, wantLocation)
	}
}
