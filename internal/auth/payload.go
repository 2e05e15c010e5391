package auth

import (
	"strings"

	"github.com/hitoshi/yadoman/internal/validate"
)

// SignupPayload はユーザー登録リクエストのボディ。
type SignupPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupSchema はSignupPayloadの静的バリデーションスキーマ。
var SignupSchema = validate.NewSchema(
	validate.Rule[SignupPayload]{
		Check:   func(p SignupPayload) bool { return p.Username != "" },
		Message: "ユーザー名は必須です",
	},
	validate.Rule[SignupPayload]{
		Check:   func(p SignupPayload) bool { return len([]rune(p.Username)) <= 30 },
		Message: "ユーザー名は30文字以内で入力してください",
	},
	validate.Rule[SignupPayload]{
		Check:   func(p SignupPayload) bool { return p.Email != "" },
		Message: "メールアドレスは必須です",
	},
	validate.Rule[SignupPayload]{
		Check: func(p SignupPayload) bool {
			return p.Email == "" || strings.Contains(p.Email, "@")
		},
		Message: "メールアドレスの形式が正しくありません",
	},
	validate.Rule[SignupPayload]{
		Check:   func(p SignupPayload) bool { return len(p.Password) >= 8 },
		Message: "パスワードは8文字以上で入力してください",
	},
)

// LoginPayload はログインリクエストのボディ。
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginSchema はLoginPayloadの静的バリデーションスキーマ。
var LoginSchema = validate.NewSchema(
	validate.Rule[LoginPayload]{
		Check:   func(p LoginPayload) bool { return p.Username != "" },
		Message: "ユーザー名は必須です",
	},
	validate.Rule[LoginPayload]{
		Check:   func(p LoginPayload) bool { return p.Password != "" },
		Message: "パスワードは必須です",
	},
)
