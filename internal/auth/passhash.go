package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2idパラメータ（サーバーサイドハッシュ向け）
const (
	argonTime    uint32 = 3         // 反復回数
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// generateSalt はユーザーごとのランダムソルトを生成する。
func generateSalt() ([]byte, error) {
	b := make([]byte, saltLen)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return b, nil
}

// hashPassword は指定ソルトでパスワードのArgon2idハッシュを計算する。
func hashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// verifyPassword はパスワードを期待ハッシュと定数時間で比較する。
func verifyPassword(password, salt, expected []byte) bool {
	got := hashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
