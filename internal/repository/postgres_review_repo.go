package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/yadoman/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	review := &model.Review{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, listing_id, author_id, rating, comment, created_at
		 FROM reviews WHERE id = $1`,
		id,
	).Scan(&review.ID, &review.ListingID, &review.AuthorID, &review.Rating, &review.Comment, &review.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find review by ID: %w", err)
	}

	return review, nil
}

// ListByListingID はリスティングのレビュー一覧をcreated_at昇順で返す。
func (r *PostgresReviewRepo) ListByListingID(ctx context.Context, listingID string) ([]*model.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, listing_id, author_id, rating, comment, created_at
		 FROM reviews
		 WHERE listing_id = $1
		 ORDER BY created_at ASC`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		review := &model.Review{}
		if err := rows.Scan(&review.ID, &review.ListingID, &review.AuthorID, &review.Rating, &review.Comment, &review.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}

	return reviews, nil
}

// Create はレビューを作成する。
func (r *PostgresReviewRepo) Create(ctx context.Context, review *model.Review) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (id, listing_id, author_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		review.ID, review.ListingID, review.AuthorID, review.Rating, review.Comment, review.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのレビューを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresReviewRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reviews WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete review: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
