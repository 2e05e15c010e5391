package validate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/yadoman/internal/model"
)

// payloadKey はペイロード型ごとに一意なコンテキストキー。
type payloadKey[P any] struct{}

// Middleware はリクエストボディをPとしてデコードし、スキーマを適用する
// ミドルウェアを返す。違反があれば400とVALIDATION_FAILEDを返し、
// 本処理には到達させない。検証済みペイロードはコンテキストに格納され、
// ハンドラーはFromContextで取り出す（ボディの二重読みを避ける）。
func Middleware[P any](schema *Schema[P]) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload P
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				slog.Warn("failed to decode request body",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeValidationError(w, "リクエストボディの形式が正しくありません。")
				return
			}

			if violations := schema.Validate(payload); len(violations) > 0 {
				writeValidationError(w, JoinViolations(violations))
				return
			}

			ctx := context.WithValue(r.Context(), payloadKey[P]{}, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext は検証済みペイロードをコンテキストから取り出す。
// Middlewareを通過していない場合はゼロ値とfalseを返す。
func FromContext[P any](ctx context.Context) (P, bool) {
	payload, ok := ctx.Value(payloadKey[P]{}).(P)
	return payload, ok
}

// ContextWithPayload は検証済みペイロードをコンテキストに注入する。
// テスト用。
func ContextWithPayload[P any](ctx context.Context, payload P) context.Context {
	return context.WithValue(ctx, payloadKey[P]{}, payload)
}

func writeValidationError(w http.ResponseWriter, message string) {
	apiErr := model.NewValidationFailedError(message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{
		"code":     apiErr.Code,
		"message":  apiErr.Message,
		"category": apiErr.Category,
		"action":   apiErr.Action,
	})
}
