// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定。起動時に1回読み込み、以後は変更しない。
type Config struct {
	DatabaseURL string
	BaseURL     string
	ServerPort  string

	// セッションの絶対有効期間と、アイドルリフレッシュの最小間隔
	SessionMaxAge        time.Duration
	SessionTouchInterval time.Duration

	// レート制限（req/min単位。ミドルウェア側でreq/secへ換算する）
	RateLimitGeneral int
	RateLimitLogin   int

	// セッション・CSRF Cookieの属性
	CookieSecure bool
	CookieDomain string

	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// DATABASE_URLとBASE_URLは必須。その他は既定値を持つ。
func Load() (*Config, error) {
	var missing []string
	requireEnv := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DatabaseURL: requireEnv("DATABASE_URL"),
		BaseURL:     requireEnv("BASE_URL"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ServerPort = envOr("SERVER_PORT", "8080")
	cfg.SessionMaxAge = envDurationOr("SESSION_MAX_AGE", 7*24*time.Hour)
	cfg.SessionTouchInterval = envDurationOr("SESSION_TOUCH_INTERVAL", 24*time.Hour)
	cfg.RateLimitGeneral = envPositiveIntOr("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = envPositiveIntOr("RATE_LIMIT_LOGIN", 10)
	cfg.CookieDomain = envOr("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// HTTPSで公開されている場合のみSecure属性を付ける
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envPositiveIntOr は正の整数として解釈できない値を既定値へ落とす。
// レート制限に0や負数が紛れ込むと全リクエストが拒否されるため。
func envPositiveIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return fallback
	}
	return i
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
