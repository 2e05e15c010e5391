package middleware

import (
	"encoding/json"
	"net/http"
)

// writeErrorJSON はハンドラー層のAPIErrorと同じ形の構造化エラーを書き込む。
func writeErrorJSON(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}
