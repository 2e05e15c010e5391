package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/yadoman/internal/auth"
	"github.com/hitoshi/yadoman/internal/config"
	"github.com/hitoshi/yadoman/internal/database"
	"github.com/hitoshi/yadoman/internal/guard"
	"github.com/hitoshi/yadoman/internal/handler"
	"github.com/hitoshi/yadoman/internal/listing"
	"github.com/hitoshi/yadoman/internal/logger"
	"github.com/hitoshi/yadoman/internal/metrics"
	"github.com/hitoshi/yadoman/internal/middleware"
	"github.com/hitoshi/yadoman/internal/repository"
	"github.com/hitoshi/yadoman/internal/review"
	"github.com/hitoshi/yadoman/internal/security"
	"github.com/hitoshi/yadoman/internal/session"
	"github.com/hitoshi/yadoman/internal/worker/cleanup"
)

// Init はJSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// ログを先に立てるのは、設定エラー自体を構造化ログで残すため。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はサブコマンドを解析して対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase は接続を開き、疎通を確認してから返す。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモード。リポジトリ・セッション管理・ドメインサービス・
// ガードチェーンをワイヤリングしてHTTPサーバーを起動し、
// SIGINT/SIGTERMでグレースフルシャットダウンする。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established")

	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	listingRepo := repository.NewPostgresListingRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sessionManager := session.NewManager(sessionRepo, session.Options{
		MaxAge:        cfg.SessionMaxAge,
		TouchInterval: cfg.SessionTouchInterval,
		CookieSecure:  cfg.CookieSecure,
		CookieDomain:  cfg.CookieDomain,
	})

	sanitizer := security.NewContentSanitizer()
	imageGuard := security.NewImageGuard(10 * time.Second)

	authService := auth.NewService(userRepo, collector)
	listingService := listing.NewService(listingRepo, reviewRepo, sanitizer, imageGuard)
	reviewService := review.NewService(reviewRepo, listingRepo, sanitizer)

	guardChain := guard.NewChain(listingRepo, reviewRepo, collector)
	guardMw := guard.NewMiddleware(guardChain, sessionManager)

	// configはreq/min単位、rate.Limitはreq/sec単位
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rateLimiterCfg.LoginBurst = cfg.RateLimitLogin
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionResolver:   sessionManager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		Guard:          guardMw,
		SessionManager: sessionManager,

		AuthService:    authService,
		ListingService: listingService,
		ReviewService:  reviewService,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		HealthChecker:  db,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモード。期限切れセッションのクリーンアップジョブを
// 起動直後に1回、以後は日次で実行する。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), collector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting")

	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate は未適用のマイグレーションを順番にすべて適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck は/healthを叩いて結果を終了コードに反映する。
// distrolessイメージにはシェルもcurlもないため、Dockerの
// HEALTHCHECKはこのサブコマンドを使う。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はログ用にDB URLのパスワード部を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return "***"
	}
	return u.Redacted()
}
