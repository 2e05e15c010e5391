package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, review, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeListingNotFound    = "LISTING_NOT_FOUND"
	ErrCodeReviewNotFound     = "REVIEW_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeDuplicateUser      = "DUPLICATE_USER"
	ErrCodeInvalidImageURL    = "INVALID_IMAGE_URL"
	ErrCodePageNotFound       = "PAGE_NOT_FOUND"
)

// NewValidationFailedError はバリデーション違反エラーを生成する。
// messageにはスキーマ宣言順にカンマ連結した違反メッセージを渡す。
func NewValidationFailedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewListingNotFoundError はリスティング未検出エラーを生成する。
func NewListingNotFoundError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定されたリスティングが見つかりません: %s", listingID),
		Category: "listing",
		Action:   "リスティングIDを確認してください。",
	}
}

// NewReviewNotFoundError はレビュー未検出エラーを生成する。
func NewReviewNotFoundError(reviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  fmt.Sprintf("指定されたレビューが見つかりません: %s", reviewID),
		Category: "review",
		Action:   "レビューIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー名不存在とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewDuplicateUserError はユーザー名・メールアドレス重複エラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  "そのユーザー名またはメールアドレスは既に使用されています。",
		Category: "auth",
		Action:   "別のユーザー名・メールアドレスで登録してください。",
	}
}

// NewInvalidImageURLError は画像URL検証エラーを生成する。
func NewInvalidImageURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageURL,
		Message:  fmt.Sprintf("無効な画像URLです: %s", reason),
		Category: "validation",
		Action:   "httpsで始まる公開URLを指定してください。",
	}
}

// NewPageNotFoundError は未定義ルートへのアクセスエラーを生成する。
func NewPageNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePageNotFound,
		Message:  "ページが見つかりません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}
