package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
// 設定値はreq/min由来だが、ここではrate.Limit（req/sec）で受け取る。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit // API全般のレート。既定120 req/min = 2 req/sec
	GeneralBurst    int
	LoginRate       rate.Limit // ログイン試行のレート。既定10 req/min
	LoginBurst      int
	CleanupInterval time.Duration // 非アクティブエントリの回収間隔
}

// DefaultRateLimiterConfig は既定のレート制限設定を返す。
// API全般 120 req/min/user、ログイン試行 10 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		LoginRate:       rate.Limit(10.0 / 60.0),
		LoginBurst:      10,
		CleanupInterval: 5 * time.Minute,
	}
}

// limiterEntry はキー1つ分のリミッターと最終アクセス時刻。
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterPool はキー別リミッターの集合。ガベージ回収のため
// 最終アクセス時刻を持つ。
type limiterPool struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func newLimiterPool(r rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		rate:    r,
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// get はキーのリミッターを取得し、なければ作る。
func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		e.lastAccess = time.Now()
		return e.limiter
	}

	e := &limiterEntry{
		limiter:    rate.NewLimiter(p.rate, p.burst),
		lastAccess: time.Now(),
	}
	p.entries[key] = e
	return e.limiter
}

// purge はttlを超えてアクセスのないエントリを削除する。
func (p *limiterPool) purge(ttl time.Duration) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(p.entries, key)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RateLimiter はAPI全般（ユーザーIDキー）とログイン試行（クライアントIPキー）の
// 2系統のレート制限を管理する。系統間は独立で、ログイン失敗の連打が
// 一般APIの枠を食い潰すことはない。
type RateLimiter struct {
	general *limiterPool
	login   *limiterPool

	cleanupInterval time.Duration
	stopCh          chan struct{}
}

// NewRateLimiter はRateLimiterを生成し、バックグラウンドで
// 非アクティブエントリの回収を開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		general:         newLimiterPool(config.GeneralRate, config.GeneralBurst),
		login:           newLimiterPool(config.LoginRate, config.LoginBurst),
		cleanupInterval: config.CleanupInterval,
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はバックグラウンドの回収ゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証済みリクエストはユーザーID、匿名リクエストはクライアントIPがキー。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := UserIDFromContext(r.Context())
			if err != nil {
				key = clientIP(r)
			}

			if !rl.general.get(key).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", "general"),
				)
				writeRateLimitResponse(w, rl.general.rate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoginMiddleware はログイン試行専用のレート制限ミドルウェアを返す。
// 認証前のリクエストが対象のため、常にクライアントIPがキー。
func (rl *RateLimiter) LoginMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !rl.login.get(ip).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("ip", ip),
					slog.String("limit_type", "login"),
				)
				writeRateLimitResponse(w, rl.login.rate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は管理中のAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.size()
}

// LoginLimiterCount は管理中のログインリミッターのエントリ数を返す。
func (rl *RateLimiter) LoginLimiterCount() int {
	return rl.login.size()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	// エントリのTTLは回収間隔の2倍
	ttl := rl.cleanupInterval * 2

	for {
		select {
		case <-ticker.C:
			rl.general.purge(ttl)
			rl.login.purge(ttl)
		case <-rl.stopCh:
			return
		}
	}
}

// clientIP はRemoteAddrからポートを除いたホスト部を取り出す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429を書き込む。Retry-Afterには
// トークンが1つ補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	writeErrorJSON(w, http.StatusTooManyRequests,
		"RATE_LIMIT_EXCEEDED", "リクエストが多すぎます。しばらくしてから再試行してください。")
}
