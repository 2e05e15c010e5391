package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/yadoman/internal/middleware"
	"github.com/hitoshi/yadoman/internal/model"
)

// SessionMutator はガードミドルウェアが拒否時に必要とする
// セッション書き込みインターフェース。session.Managerの部分集合。
type SessionMutator interface {
	SetPendingRedirect(ctx context.Context, session *model.Session, path string) error
	AddNotice(ctx context.Context, session *model.Session, notice model.Notice) error
}

// Middleware はChainの判定をHTTPミドルウェアとして適用する。
// 拒否時はフラッシュ通知を積み、303 See Otherでリダイレクトする。
type Middleware struct {
	chain    *Chain
	sessions SessionMutator
}

// NewMiddleware はMiddlewareを生成する。
func NewMiddleware(chain *Chain, sessions SessionMutator) *Middleware {
	return &Middleware{
		chain:    chain,
		sessions: sessions,
	}
}

// RequireLogin は認証済みセッションを要求するミドルウェアを返す。
// 未認証の場合は本来の行き先をセッションに記録し、ログインページへ
// リダイレクトする（ログイン成功後に元の操作へ戻れる）。
func (m *Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := middleware.SessionFromContext(r.Context())

		// クエリ付きで記録し、ログイン後に元のリクエストを再現できるようにする
		requestPath := r.URL.Path
		if r.URL.RawQuery != "" {
			requestPath += "?" + r.URL.RawQuery
		}

		outcome := m.chain.RequireLogin(session, requestPath)
		if !outcome.Allowed() {
			m.deny(w, r, session, outcome)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireListingOwner はURLパラメータidのリスティングの所有者であることを
// 要求するミドルウェアを返す。RequireLoginの後に配置する。
func (m *Middleware) RequireListingOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := middleware.SessionFromContext(r.Context())
		listingID := chi.URLParam(r, "id")

		outcome := m.chain.RequireListingOwner(r.Context(), session.UserID, listingID)
		if !outcome.Allowed() {
			m.deny(w, r, session, outcome)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireReviewAuthor はURLパラメータreviewIdのレビューの作者であることを
// 要求するミドルウェアを返す。RequireLoginの後に配置する。
func (m *Middleware) RequireReviewAuthor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := middleware.SessionFromContext(r.Context())
		listingID := chi.URLParam(r, "id")
		reviewID := chi.URLParam(r, "reviewId")

		outcome := m.chain.RequireReviewAuthor(r.Context(), session.UserID, listingID, reviewID)
		if !outcome.Allowed() {
			m.deny(w, r, session, outcome)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// deny は拒否Outcomeをレスポンスへ適用する。
// 戻り先の記録・通知の保存に失敗してもリダイレクト自体は行う。
func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, session *model.Session, outcome Outcome) {
	if session != nil {
		if path := outcome.RememberPath(); path != "" {
			if err := m.sessions.SetPendingRedirect(r.Context(), session, path); err != nil {
				slog.Error("failed to remember redirect path",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := m.sessions.AddNotice(r.Context(), session, outcome.Notice()); err != nil {
			slog.Error("failed to add notice",
				slog.String("error", err.Error()),
			)
		}
	}

	http.Redirect(w, r, outcome.RedirectPath(), http.StatusSeeOther)
}
