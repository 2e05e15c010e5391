package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/yadoman/internal/auth"
	"github.com/hitoshi/yadoman/internal/guard"
	"github.com/hitoshi/yadoman/internal/listing"
	"github.com/hitoshi/yadoman/internal/metrics"
	"github.com/hitoshi/yadoman/internal/middleware"
	"github.com/hitoshi/yadoman/internal/review"
	"github.com/hitoshi/yadoman/internal/validate"
)

// HealthChecker はヘルスチェックが必要とするDB疎通確認インターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// アクセス制御ガード
	Guard *guard.Middleware

	// セッション管理
	SessionManager SessionManagerInterface

	// 認証
	AuthService AuthServiceInterface

	// リスティング
	ListingService ListingServiceInterface

	// レビュー
	ReviewService ReviewServiceInterface

	// メトリクス（nilの場合は計測しない）
	Metrics metrics.MetricsCollector

	// Prometheusスクレイプ用のハンドラー（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler

	// ヘルスチェック（nilの場合はDB疎通を確認しない）
	HealthChecker HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Metrics → Logging → Session → CSRF → RateLimit(General)
//
// CSRFトークン取得エンドポイント（/api/csrf-token）はセッション解決の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))

	userHandler := NewUserHandler(deps.AuthService, deps.SessionManager)
	listingHandler := NewListingHandler(deps.ListingService, deps.SessionManager, deps.Metrics)
	reviewHandler := NewReviewHandler(deps.ReviewService, deps.SessionManager, deps.Metrics)

	// CSRFトークン取得（セッション不要）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// ヘルスチェック（Dockerヘルスチェック・ロードバランサー用）
	r.Get("/health", newHealthHandler(deps.HealthChecker))

	// Prometheusスクレイプエンドポイント
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- セッション解決済みのルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 認証
		r.Get("/signup", userHandler.SignupPage)
		r.With(validate.Middleware(auth.SignupSchema)).Post("/signup", userHandler.Signup)
		r.Get("/login", userHandler.LoginPage)
		r.With(
			deps.RateLimiter.LoginMiddleware(),
			validate.Middleware(auth.LoginSchema),
		).Post("/login", userHandler.Login)
		r.Post("/logout", userHandler.Logout)
		r.With(deps.Guard.RequireLogin).Get("/me", userHandler.Me)

		// リスティング管理
		r.Route("/listings", func(r chi.Router) {
			r.Get("/", listingHandler.Index)
			r.With(deps.Guard.RequireLogin).Get("/new", listingHandler.New)
			r.With(
				deps.Guard.RequireLogin,
				validate.Middleware(listing.Schema),
			).Post("/", listingHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", listingHandler.Show)
				r.With(
					deps.Guard.RequireLogin,
					deps.Guard.RequireListingOwner,
				).Get("/edit", listingHandler.Edit)
				r.With(
					deps.Guard.RequireLogin,
					deps.Guard.RequireListingOwner,
					validate.Middleware(listing.Schema),
				).Put("/", listingHandler.Update)
				r.With(
					deps.Guard.RequireLogin,
					deps.Guard.RequireListingOwner,
				).Delete("/", listingHandler.Delete)

				// レビュー管理
				r.With(
					deps.Guard.RequireLogin,
					validate.Middleware(review.Schema),
				).Post("/reviews", reviewHandler.Create)
				r.With(
					deps.Guard.RequireLogin,
					deps.Guard.RequireReviewAuthor,
				).Delete("/reviews/{reviewId}", reviewHandler.Delete)
			})
		})
	})

	r.NotFound(NotFoundHandler)

	return r
}

// newHealthHandler はヘルスチェックハンドラーを返す。
// checkerが指定されている場合はDB疎通も確認する。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
