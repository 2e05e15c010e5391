// Package auth はローカル認証（ユーザー名＋パスワード）のドメインロジックを提供する。
// セッションのライフサイクルはsessionパッケージが担い、本パッケージは
// 資格情報の検証と登録のみを扱う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/repository"
)

// LoginMetrics はログイン試行の計測インターフェース。
// 実装はmetricsパッケージが提供する。nilの場合は計測しない。
type LoginMetrics interface {
	RecordLogin(result string)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	metrics  LoginMetrics
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(userRepo repository.UserRepository, metrics LoginMetrics) *Service {
	return &Service{
		userRepo: userRepo,
		metrics:  metrics,
	}
}

// Register は新規ユーザーを作成する。
// ユーザー名・メールアドレスが重複している場合はDUPLICATE_USERエラーを返す。
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	salt, err := generateSalt()
	if err != nil {
		return nil, fmt.Errorf("ソルトの生成に失敗しました: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hashPassword([]byte(password), salt),
		PasswordSalt: salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, model.NewDuplicateUserError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Authenticate は資格情報を検証し、一致したユーザーを返す。
// ユーザー名不存在とパスワード不一致は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		s.recordLogin("failure")
		return nil, model.NewInvalidCredentialsError()
	}

	if !verifyPassword([]byte(password), user.PasswordSalt, user.PasswordHash) {
		s.recordLogin("failure")
		return nil, model.NewInvalidCredentialsError()
	}

	s.recordLogin("success")
	slog.Info("user authenticated", slog.String("user_id", user.ID))
	return user, nil
}

// GetCurrentUser は解決済みセッションのプリンシパルを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.NewUserNotFoundError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

func (s *Service) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(result)
	}
}
