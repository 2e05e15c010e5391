// ContentSanitizerService はユーザー投稿テキスト（リスティングの説明文と
// レビューコメント）をサニタイズし、XSS攻撃からユーザーを保護する。
// bluemondayライブラリの許可リストベースのポリシーを使用する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキストコンテンツのサニタイズ機能のインターフェースを定義する。
// リスティング・レビューの保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize はコンテンツをサニタイズして安全なテキストを返す。
	// ユーザー投稿はプレーンテキストとして扱うため、全てのHTMLタグと
	// on*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// リスティングの説明文もレビューコメントもHTMLを許可しないため、
// StrictPolicy（全タグ除去）を使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はコンテンツをサニタイズして安全なテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
