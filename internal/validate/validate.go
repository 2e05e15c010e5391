// Package validate はリクエストペイロードの宣言的バリデーションを提供する。
// ハンドラーごとに散在するチェックではなく、ペイロード型ごとに
// 静的なSchemaを1つ定義し、ミドルウェアが本処理の前に適用する。
package validate

import (
	"strings"
)

// Rule はペイロードPに対する単一の検証ルール。
// 違反時はfalseとメッセージを返す。
type Rule[P any] struct {
	// Check は違反が無ければtrueを返す。
	Check func(p P) bool

	// Message は違反時にクライアントへ返すメッセージ。
	Message string
}

// Schema はペイロードPの検証ルール集合。宣言順に評価される。
type Schema[P any] struct {
	rules []Rule[P]
}

// NewSchema は与えたルールからSchemaを構築する。
func NewSchema[P any](rules ...Rule[P]) *Schema[P] {
	return &Schema[P]{rules: rules}
}

// Validate は全ルールを宣言順に評価し、違反メッセージを返す。
// 違反が無ければ空スライスを返す。最初の違反で打ち切らず全件集める。
func (s *Schema[P]) Validate(p P) []string {
	var violations []string
	for _, rule := range s.rules {
		if !rule.Check(p) {
			violations = append(violations, rule.Message)
		}
	}
	return violations
}

// JoinViolations は違反メッセージをカンマ区切りの単一メッセージへ連結する。
func JoinViolations(violations []string) string {
	return strings.Join(violations, ",")
}
