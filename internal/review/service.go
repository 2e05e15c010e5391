// Package review はリスティングに対するレビューのドメインロジックを提供する。
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/repository"
	"github.com/hitoshi/yadoman/internal/security"
	"github.com/hitoshi/yadoman/internal/validate"
)

// Payload はレビューの投稿リクエストボディ。
type Payload struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Schema はPayloadの静的バリデーションスキーマ。
var Schema = validate.NewSchema(
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return p.Rating >= 1 && p.Rating <= 5 },
		Message: "評価は1から5の間で入力してください",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return p.Comment != "" },
		Message: "コメントは必須です",
	},
	validate.Rule[Payload]{
		Check:   func(p Payload) bool { return len([]rune(p.Comment)) <= 1000 },
		Message: "コメントは1000文字以内で入力してください",
	},
)

// Service はレビューに関するビジネスロジックを提供する。
type Service struct {
	reviews   repository.ReviewRepository
	listings  repository.ListingRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	reviews repository.ReviewRepository,
	listings repository.ListingRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		reviews:   reviews,
		listings:  listings,
		sanitizer: sanitizer,
	}
}

// Create はリスティングへ新規レビューを投稿する。
// 対象リスティングが存在しない場合はLISTING_NOT_FOUNDエラーを返す
// （投稿中に削除されたリスティングへの書き込みを防ぐ）。
func (s *Service) Create(ctx context.Context, listingID, authorID string, p Payload) (*model.Review, error) {
	// 1. 対象リスティングの存在確認
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("リスティングの取得に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}

	// 2. レビューの作成
	review := &model.Review{
		ID:        uuid.New().String(),
		ListingID: listingID,
		AuthorID:  authorID,
		Rating:    p.Rating,
		Comment:   s.sanitizer.Sanitize(p.Comment),
		CreatedAt: time.Now(),
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("レビューの作成に失敗しました: %w", err)
	}

	slog.Info("review created",
		slog.String("review_id", review.ID),
		slog.String("listing_id", listingID),
		slog.String("author_id", authorID),
	)

	return review, nil
}

// Delete は指定IDのレビューを削除する。
// 見つからない場合はREVIEW_NOT_FOUNDエラーを返す。
func (s *Service) Delete(ctx context.Context, reviewID string) error {
	deleted, err := s.reviews.DeleteByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("レビューの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewReviewNotFoundError(reviewID)
	}

	slog.Info("review deleted", slog.String("review_id", reviewID))

	return nil
}
