package middleware

import "net/http"

// corsAllowedHeaders はフロントエンドが送るリクエストヘッダーの許可リスト。
// 二重送信CSRF方式で使うX-CSRF-Tokenを含める。
const corsAllowedHeaders = "Content-Type, X-CSRF-Token"

// NewCORSMiddleware は単一オリジン向けのCORSミドルウェアを返す。
// セッションCookieを送るためAllow-Credentialsを有効にする都合上、
// オリジンのワイルドカード(*)は使えない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")

			// プリフライトはここで完結させる
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
