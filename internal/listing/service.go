// Package listing はリスティング（宿泊物件）のドメインロジックを提供する。
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/repository"
	"github.com/hitoshi/yadoman/internal/security"
	"github.com/hitoshi/yadoman/internal/validate"
)

// Payload はリスティングの作成・更新リクエストボディ。
type Payload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Price       int64  `json:"price"`
	Location    string `json:"location"`
	Country     string `json:"country"`
}

// Schema はPayloadの静的バリデーションスキーマ。
// 違反メッセージは宣言順にカンマ連結してクライアントへ返す。
var Schema = validate.NewSchema(
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return p.Title != "" },
		Message: "タイトルは必須です",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return len([]rune(p.Title)) <= 100 },
		Message: "タイトルは100文字以内で入力してください",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return p.Description != "" },
		Message: "説明は必須です",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return len([]rune(p.Description)) <= 2000 },
		Message: "説明は2000文字以内で入力してください",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return p.Price >= 0 },
		Message: "価格は0以上で入力してください",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return p.Location != "" },
		Message: "所在地は必須です",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return len([]rune(p.Location)) <= 100 },
		Message: "所在地は100文字以内で入力してください",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return p.Country != "" },
		Message: "国名は必須です",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return len([]rune(p.Country)) <= 56 },
		Message: "国名は56文字以内で入力してください",
	},
)

// Detail はリスティング詳細（レビュー込み）。
type Detail struct {
	Listing *model.Listing
	Reviews []*model.Review
}

// Service はリスティングに関するビジネスロジックを提供する。
type Service struct {
	listings   repository.ListingRepository
	reviews    repository.ReviewRepository
	sanitizer  security.ContentSanitizerService
	imageGuard security.ImageGuardService
}

// NewService はServiceを生成する。
func NewService(
	listings repository.ListingRepository,
	reviews repository.ReviewRepository,
	sanitizer security.ContentSanitizerService,
	imageGuard security.ImageGuardService,
) *Service {
	return &Service{
		listings:   listings,
		reviews:    reviews,
		sanitizer:  sanitizer,
		imageGuard: imageGuard,
	}
}

// List は全リスティングを新着順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Listing, error) {
	listings, err := s.listings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("リスティング一覧の取得に失敗しました: %w", err)
	}
	return listings, nil
}

// Get は指定IDのリスティングとそのレビューを取得する。
// 見つからない場合はLISTING_NOT_FOUNDエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	listing, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("リスティングの取得に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(id)
	}

	reviews, err := s.reviews.ListByListingID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}

	return &Detail{Listing: listing, Reviews: reviews}, nil
}

// Create は新規リスティングを作成する。
// テキストフィールドはサニタイズし、画像URLは安全性を検証する。
func (s *Service) Create(ctx context.Context, ownerID string, p Payload) (*model.Listing, error) {
	if err := s.validateImage(ctx, p.ImageURL); err != nil {
		return nil, err
	}

	now := time.Now()
	listing := &model.Listing{
		ID:            uuid.New().String(),
		Title:         s.sanitizer.Sanitize(p.Title),
		Description:   s.sanitizer.Sanitize(p.Description),
		ImageURL:      p.ImageURL,
		ImageFilename: imageFilename(p.ImageURL),
		Price:         p.Price,
		Location:      s.sanitizer.Sanitize(p.Location),
		Country:       s.sanitizer.Sanitize(p.Country),
		OwnerID:       ownerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("リスティングの作成に失敗しました: %w", err)
	}

	slog.Info("listing created",
		slog.String("listing_id", listing.ID),
		slog.String("owner_id", ownerID),
	)

	return listing, nil
}

// Update は指定IDのリスティングを更新する。
// owner_idとcreated_atは変更されない。見つからない場合は
// LISTING_NOT_FOUNDエラーを返す。
func (s *Service) Update(ctx context.Context, id string, p Payload) (*model.Listing, error) {
	if err := s.validateImage(ctx, p.ImageURL); err != nil {
		return nil, err
	}

	listing := &model.Listing{
		ID:            id,
		Title:         s.sanitizer.Sanitize(p.Title),
		Description:   s.sanitizer.Sanitize(p.Description),
		ImageURL:      p.ImageURL,
		ImageFilename: imageFilename(p.ImageURL),
		Price:         p.Price,
		Location:      s.sanitizer.Sanitize(p.Location),
		Country:       s.sanitizer.Sanitize(p.Country),
		UpdatedAt:     time.Now(),
	}

	updated, err := s.listings.Update(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("リスティングの更新に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewListingNotFoundError(id)
	}

	slog.Info("listing updated", slog.String("listing_id", id))

	return listing, nil
}

// Delete は指定IDのリスティングを削除する。
// 関連レビューはストア側でCASCADE削除される。
// 見つからない場合はLISTING_NOT_FOUNDエラーを返す。
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.listings.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("リスティングの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewListingNotFoundError(id)
	}

	slog.Info("listing deleted", slog.String("listing_id", id))

	return nil
}

// validateImage は画像URLを検証する。空URLは画像なしとして許可する。
// 静的検証の後、実際に画像として取得可能かをHEADリクエストで確認する。
func (s *Service) validateImage(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return nil
	}
	if err := s.imageGuard.ValidateImageURL(rawURL); err != nil {
		return model.NewInvalidImageURLError(err.Error())
	}
	if err := s.imageGuard.ProbeImage(ctx, rawURL); err != nil {
		return model.NewInvalidImageURLError(err.Error())
	}
	return nil
}

// imageFilename は画像URLから表示用のファイル名を取り出す。
func imageFilename(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return path.Base(rawURL)
}
