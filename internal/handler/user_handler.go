package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/yadoman/internal/auth"
	"github.com/hitoshi/yadoman/internal/middleware"
	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/validate"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// UserHandler はユーザー登録・認証のHTTPハンドラー。
type UserHandler struct {
	service  AuthServiceInterface
	sessions SessionManagerInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service AuthServiceInterface, sessions SessionManagerInterface) *UserHandler {
	return &UserHandler{
		service:  service,
		sessions: sessions,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginPage はログインページの状態（認証状況と未表示のフラッシュ通知）を返す。
// 通知は取り出しと同時にセッションからクリアされる。
// GET /login
func (h *UserHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.writePageState(w, r)
}

// SignupPage はサインアップページの状態を返す。
// GET /signup
func (h *UserHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.writePageState(w, r)
}

func (h *UserHandler) writePageState(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	var notices []model.Notice
	if session != nil {
		popped, err := h.sessions.PopNotices(r.Context(), session)
		if err != nil {
			slog.Error("failed to pop notices", slog.String("error", err.Error()))
		} else {
			notices = popped
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": session.IsAuthenticated(),
		"notices":       toNoticeResponses(notices),
	})
}

// Signup はユーザー登録を処理し、そのままログイン状態にする。
// POST /signup
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	payload, ok := validate.FromContext[auth.SignupPayload](r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("リクエストボディの形式が正しくありません。"))
		return
	}

	user, err := h.service.Register(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeDuplicateUser {
			// 重複はサインアップページへ戻して通知する
			redirectWithNotice(w, r, h.sessions, middleware.SessionFromContext(r.Context()),
				"/signup", errorNotice(apiErr.Message))
			return
		}
		handleServiceError(w, err)
		return
	}

	// 登録と同時に認証済みセッションへ切り替える
	if err := h.switchSession(w, r, user.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, "/listings", http.StatusSeeOther)
}

// Login は資格情報を検証し、認証済みセッションを発行する。
// 未認証時に記録された行き先（pending redirect）があればそこへ、
// なければリスティング一覧へリダイレクトする。
// POST /login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	payload, ok := validate.FromContext[auth.LoginPayload](r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("リクエストボディの形式が正しくありません。"))
		return
	}

	user, err := h.service.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidCredentials {
			// 失敗時は匿名セッションとpending_redirectを保持したまま戻す
			// （再ログインで本来の行き先へ戻れる）
			redirectWithNotice(w, r, h.sessions, middleware.SessionFromContext(r.Context()),
				"/login", errorNotice(apiErr.Message))
			return
		}
		handleServiceError(w, err)
		return
	}

	// 1. 匿名セッションから行き先を取り出す（クリアは破棄が兼ねる）
	current := middleware.SessionFromContext(r.Context())
	target := h.sessions.PendingRedirect(current)
	if target == "" {
		target = "/listings"
	}

	// 2. セッション固定化攻撃対策: ログイン時は必ず新しいセッションを発行する
	newSession, err := h.sessions.Issue(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if current != nil {
		if err := h.sessions.Destroy(r.Context(), current.ID); err != nil {
			slog.Error("failed to destroy pre-login session",
				slog.String("session_id", current.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	h.sessions.SetCookie(w, newSession)

	redirectWithNotice(w, r, h.sessions, newSession, target,
		successNotice("おかえりなさい！"))
}

// Logout はセッションを破棄する。
// POST /logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session != nil {
		if err := h.sessions.Destroy(r.Context(), session.ID); err != nil {
			slog.Error("failed to destroy session",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/listings", http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

// switchSession は現在のセッションを破棄し、認証済みセッションへ
// 置き換えてCookieを発行する。
func (h *UserHandler) switchSession(w http.ResponseWriter, r *http.Request, userID string) error {
	newSession, err := h.sessions.Issue(r.Context(), userID)
	if err != nil {
		return err
	}

	if current := middleware.SessionFromContext(r.Context()); current != nil {
		if err := h.sessions.Destroy(r.Context(), current.ID); err != nil {
			slog.Error("failed to destroy pre-signup session",
				slog.String("session_id", current.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	h.sessions.SetCookie(w, newSession)

	if err := h.sessions.AddNotice(r.Context(), newSession, successNotice("ようこそ！アカウントが作成されました。")); err != nil {
		slog.Error("failed to add notice", slog.String("error", err.Error()))
	}

	return nil
}
