package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドがヘッダーへ写せるよう、HttpOnlyにしない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName は検証対象のリクエストヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	// csrfTokenTTL はトークンCookieの有効期間。セッション（7日）より短い。
	csrfTokenTTL = 24 * time.Hour
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware は二重送信Cookie方式のCSRF防御ミドルウェアを返す。
// リスティングやレビューの作成・更新・削除といった状態変更メソッドは
// CookieとX-CSRF-Tokenヘッダーの一致を必須とし、不一致は403で拒否する。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証せず、未設定ならCookieを配る。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				ensureCSRFCookie(w, r, config)
				next.ServeHTTP(w, r)
				return
			}

			if reason := verifyDoubleSubmit(r); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				writeErrorJSON(w, http.StatusForbidden,
					"CSRF_TOKEN_INVALID", "CSRFトークンが不正です。")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verifyDoubleSubmit はCookieとヘッダーのトークン一致を検証する。
// 一致すれば空文字列、そうでなければログ用の理由を返す。
func verifyDoubleSubmit(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}

	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}

	return ""
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイント（GET /api/csrf-token）の
// ハンドラーを返す。フロントエンドはここで得たトークンをX-CSRF-Tokenヘッダーに
// 載せて変更リクエストを送る。既存のトークンCookieがあればそれをそのまま返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token, err = generateCSRFToken()
			if err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				writeErrorJSON(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "内部エラーが発生しました。")
				return
			}
			setCSRFCookie(w, config, token)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token": token,
		})
	})
}

// isSafeMethod は読み取り専用のHTTPメソッドかどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie はトークンCookieが未設定の場合に新規発行する。
// 発行に失敗してもリクエスト処理は継続する。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}

	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return
	}

	setCSRFCookie(w, config, token)
}

// setCSRFCookie はトークンCookieをレスポンスへ設定する。
func setCSRFCookie(w http.ResponseWriter, config CSRFConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   int(csrfTokenTTL.Seconds()),
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateCSRFToken は暗号的に安全な256ビットのトークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
