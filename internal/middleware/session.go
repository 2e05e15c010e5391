// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/yadoman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionResolver はセッションの解決・発行に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*model.Session, error)
	Issue(ctx context.Context, userID string) (*model.Session, error)
	SetCookie(w http.ResponseWriter, session *model.Session)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを解決する
// ミドルウェアを返す。セッションが無い場合は匿名セッションを発行する
// （未認証クライアントの初回アクセス）。
// 未認証でも拒否はしない。保護ルートの判断はガードチェーンが行う。
// 解決したセッションと認証済みユーザーIDをリクエストコンテキストに注入する。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからセッションを解決
			session, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			// 2. セッションが無ければ匿名セッションを発行
			if session == nil {
				session, err = resolver.Issue(r.Context(), "")
				if err != nil {
					slog.Error("failed to issue anonymous session",
						slog.String("error", err.Error()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				resolver.SetCookie(w, session)
			}

			// 3. セッションとユーザーIDをコンテキストに注入
			ctx := ContextWithSession(r.Context(), session)
			if session.IsAuthenticated() {
				ctx = ContextWithUserID(ctx, session.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過した認証済みリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過していない場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// ContextWithSession はコンテキストにセッションを注入する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
