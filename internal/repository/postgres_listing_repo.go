package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/yadoman/internal/model"
)

// PostgresListingRepo はPostgreSQLを使用したリスティングリポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

const listingColumns = `id, title, description, image_url, image_filename, price, location, country, owner_id, created_at, updated_at`

func scanListing(row interface{ Scan(...any) error }) (*model.Listing, error) {
	l := &model.Listing{}
	err := row.Scan(&l.ID, &l.Title, &l.Description, &l.ImageURL, &l.ImageFilename,
		&l.Price, &l.Location, &l.Country, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// FindByID は指定IDのリスティングを取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`,
		id,
	)

	listing, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing by ID: %w", err)
	}

	return listing, nil
}

// List は全リスティングをcreated_at降順で返す。
func (r *PostgresListingRepo) List(ctx context.Context) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*model.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return listings, nil
}

// Create はリスティングを作成する。
func (r *PostgresListingRepo) Create(ctx context.Context, listing *model.Listing) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (id, title, description, image_url, image_filename, price, location, country, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		listing.ID, listing.Title, listing.Description, listing.ImageURL, listing.ImageFilename,
		listing.Price, listing.Location, listing.Country, listing.OwnerID, listing.CreatedAt, listing.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// Update はリスティングの編集可能フィールドを更新する。
// owner_idとcreated_atは不変。対象が存在しない場合はfalseを返す。
func (r *PostgresListingRepo) Update(ctx context.Context, listing *model.Listing) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE listings
		 SET title = $2, description = $3, image_url = $4, image_filename = $5,
		     price = $6, location = $7, country = $8, updated_at = $9
		 WHERE id = $1`,
		listing.ID, listing.Title, listing.Description, listing.ImageURL, listing.ImageFilename,
		listing.Price, listing.Location, listing.Country, listing.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update listing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteByID は指定IDのリスティングを削除する。
// 関連するreviewsはCASCADE削除される。対象が存在しない場合はfalseを返す。
func (r *PostgresListingRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM listings WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete listing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// compile-time interface check
var _ ListingRepository = (*PostgresListingRepo)(nil)
