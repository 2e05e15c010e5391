package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを回収するミドルウェアを返す。
// ガードや各ハンドラーが拾えなかった想定外のエラーはすべてここに集約され、
// 汎用メッセージの500としてクライアントへ返る。スタックトレースはログにのみ残す。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				writeErrorJSON(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "内部エラーが発生しました。")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
