package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/yadoman/internal/auth"
	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/validate"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, username, email, password string) (*model.User, error)
	authenticateFn   func(ctx context.Context, username, password string) (*model.User, error)
	getCurrentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, email, password)
	}
	return &model.User{ID: "user-1", Username: username, Email: email}, nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, username, password)
	}
	return &model.User{ID: "user-1", Username: username}, nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, userID)
	}
	return &model.User{ID: userID, Username: "tanaka", Email: "tanaka@example.com"}, nil
}

func loginRequest(payload auth.LoginPayload, session *model.Session) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req = withSession(req, session)
	return req.WithContext(validate.ContextWithPayload(req.Context(), payload))
}

// --- POST /login テスト ---

func TestUserHandler_Login_Success_DefaultRedirect(t *testing.T) {
	sessions := &mockSessionManager{}
	h := NewUserHandler(&mockAuthService{}, sessions)

	req := loginRequest(auth.LoginPayload{Username: "tanaka", Password: "password123"}, anonymousSession("session-anon"))
	w := httptest.NewRecorder()

	h.Login(w, req)

	assertRedirect(t, w, "/listings")

	// 新しい認証済みセッションが発行され、匿名セッションは破棄される
	if len(sessions.issued) != 1 {
		t.Fatalf("issued sessions = %d, want 1", len(sessions.issued))
	}
	if sessions.issued[0].UserID != "user-1" {
		t.Errorf("issued session UserID = %q, want %q", sessions.issued[0].UserID, "user-1")
	}
	if len(sessions.destroyedIDs) != 1 || sessions.destroyedIDs[0] != "session-anon" {
		t.Errorf("destroyedIDs = %v, want [session-anon]", sessions.destroyedIDs)
	}
	if sessions.cookiesSet != 1 {
		t.Errorf("cookiesSet = %d, want 1", sessions.cookiesSet)
	}
}

func TestUserHandler_Login_Success_PendingRedirect(t *testing.T) {
	// 未認証時に記録された行き先があればそこへ戻す
	sessions := &mockSessionManager{pendingRedirect: "/listings/listing-42"}
	h := NewUserHandler(&mockAuthService{}, sessions)

	req := loginRequest(auth.LoginPayload{Username: "tanaka", Password: "password123"}, anonymousSession("session-anon"))
	w := httptest.NewRecorder()

	h.Login(w, req)

	assertRedirect(t, w, "/listings/listing-42")
}

func TestUserHandler_Login_InvalidCredentials(t *testing.T) {
	sessions := &mockSessionManager{}
	svc := &mockAuthService{
		authenticateFn: func(ctx context.Context, username, password string) (*model.User, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewUserHandler(svc, sessions)

	req := loginRequest(auth.LoginPayload{Username: "tanaka", Password: "wrong"}, anonymousSession("session-anon"))
	w := httptest.NewRecorder()

	h.Login(w, req)

	// 失敗時はログインページへ戻し、匿名セッションは保持する
	assertRedirect(t, w, "/login")
	if len(sessions.issued) != 0 {
		t.Errorf("issued sessions = %d, want 0", len(sessions.issued))
	}
	if len(sessions.destroyedIDs) != 0 {
		t.Errorf("destroyedIDs = %v, want none", sessions.destroyedIDs)
	}
	if len(sessions.addedNotices) != 1 || sessions.addedNotices[0].Severity != model.NoticeError {
		t.Errorf("addedNotices = %v, want one error notice", sessions.addedNotices)
	}
}

func TestUserHandler_Login_MissingPayload(t *testing.T) {
	h := NewUserHandler(&mockAuthService{}, &mockSessionManager{})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req = withSession(req, anonymousSession("session-anon"))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- POST /signup テスト ---

func TestUserHandler_Signup_Success(t *testing.T) {
	sessions := &mockSessionManager{}
	h := NewUserHandler(&mockAuthService{}, sessions)

	req := httptest.NewRequest(http.MethodPost, "/signup", nil)
	req = withSession(req, anonymousSession("session-anon"))
	req = req.WithContext(validate.ContextWithPayload(req.Context(), auth.SignupPayload{
		Username: "tanaka",
		Email:    "tanaka@example.com",
		Password: "password123",
	}))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	assertRedirect(t, w, "/listings")

	// 登録と同時に認証済みセッションへ切り替わる
	if len(sessions.issued) != 1 || sessions.issued[0].UserID != "user-1" {
		t.Fatalf("issued = %v, want one session for user-1", sessions.issued)
	}
	if len(sessions.destroyedIDs) != 1 || sessions.destroyedIDs[0] != "session-anon" {
		t.Errorf("destroyedIDs = %v, want [session-anon]", sessions.destroyedIDs)
	}
	if sessions.cookiesSet != 1 {
		t.Errorf("cookiesSet = %d, want 1", sessions.cookiesSet)
	}
	if len(sessions.addedNotices) != 1 || sessions.addedNotices[0].Severity != model.NoticeSuccess {
		t.Errorf("addedNotices = %v, want one success notice", sessions.addedNotices)
	}
}

func TestUserHandler_Signup_DuplicateUser(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, username, email, password string) (*model.User, error) {
			return nil, model.NewDuplicateUserError()
		},
	}
	sessions := &mockSessionManager{}
	h := NewUserHandler(svc, sessions)

	req := httptest.NewRequest(http.MethodPost, "/signup", nil)
	req = withSession(req, anonymousSession("session-anon"))
	req = req.WithContext(validate.ContextWithPayload(req.Context(), auth.SignupPayload{
		Username: "tanaka",
		Email:    "tanaka@example.com",
		Password: "password123",
	}))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	// 重複はサインアップページへ戻して通知する
	assertRedirect(t, w, "/signup")
	if len(sessions.issued) != 0 {
		t.Errorf("issued sessions = %d, want 0", len(sessions.issued))
	}
	if len(sessions.addedNotices) != 1 || sessions.addedNotices[0].Severity != model.NoticeError {
		t.Errorf("addedNotices = %v, want one error notice", sessions.addedNotices)
	}
}

// --- POST /logout テスト ---

func TestUserHandler_Logout(t *testing.T) {
	sessions := &mockSessionManager{}
	h := NewUserHandler(&mockAuthService{}, sessions)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req = withSession(req, authedSession("session-1", "user-1"))
	w := httptest.NewRecorder()

	h.Logout(w, req)

	assertRedirect(t, w, "/listings")

	if len(sessions.destroyedIDs) != 1 || sessions.destroyedIDs[0] != "session-1" {
		t.Errorf("destroyedIDs = %v, want [session-1]", sessions.destroyedIDs)
	}
	if sessions.cookiesCleared != 1 {
		t.Errorf("cookiesCleared = %d, want 1", sessions.cookiesCleared)
	}
}

func TestUserHandler_Logout_WithoutSession(t *testing.T) {
	// セッションが無くてもCookieをクリアしてリダイレクトする
	sessions := &mockSessionManager{}
	h := NewUserHandler(&mockAuthService{}, sessions)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	assertRedirect(t, w, "/listings")
	if sessions.cookiesCleared != 1 {
		t.Errorf("cookiesCleared = %d, want 1", sessions.cookiesCleared)
	}
}

// --- GET /login, GET /signup テスト ---

func TestUserHandler_LoginPage_PopsNotices(t *testing.T) {
	sessions := &mockSessionManager{
		popNoticesFn: func(ctx context.Context, session *model.Session) ([]model.Notice, error) {
			return []model.Notice{{Severity: model.NoticeError, Text: "ログインが必要です。"}}, nil
		},
	}
	h := NewUserHandler(&mockAuthService{}, sessions)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req = withSession(req, anonymousSession("session-anon"))
	w := httptest.NewRecorder()

	h.LoginPage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Authenticated bool             `json:"authenticated"`
		Notices       []noticeResponse `json:"notices"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Authenticated {
		t.Error("authenticated = true, want false")
	}
	if len(body.Notices) != 1 || body.Notices[0].Text != "ログインが必要です。" {
		t.Errorf("notices = %v, want the guard notice", body.Notices)
	}
}

func TestUserHandler_SignupPage_Authenticated(t *testing.T) {
	h := NewUserHandler(&mockAuthService{}, &mockSessionManager{})

	req := httptest.NewRequest(http.MethodGet, "/signup", nil)
	req = withSession(req, authedSession("session-1", "user-1"))
	w := httptest.NewRecorder()

	h.SignupPage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Authenticated {
		t.Error("authenticated = false, want true")
	}
}

// --- GET /me テスト ---

func TestUserHandler_Me_Success(t *testing.T) {
	h := NewUserHandler(&mockAuthService{}, &mockSessionManager{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = withSession(req, authedSession("session-1", "user-1"))
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "user-1" || body.Username != "tanaka" {
		t.Errorf("body = %+v, want user-1/tanaka", body)
	}
}

func TestUserHandler_Me_Unauthenticated(t *testing.T) {
	h := NewUserHandler(&mockAuthService{}, &mockSessionManager{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = withSession(req, anonymousSession("session-anon"))
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
