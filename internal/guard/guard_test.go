package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/yadoman/internal/model"
)

// mockListingRepo はテスト用のリスティングリポジトリモック。
type mockListingRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Listing, error)
}

func (m *mockListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockListingRepo) List(ctx context.Context) ([]*model.Listing, error) {
	return nil, nil
}

func (m *mockListingRepo) Create(ctx context.Context, listing *model.Listing) error {
	return nil
}

func (m *mockListingRepo) Update(ctx context.Context, listing *model.Listing) (bool, error) {
	return false, nil
}

func (m *mockListingRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	return false, nil
}

// mockReviewRepo はテスト用のレビューリポジトリモック。
type mockReviewRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Review, error)
}

func (m *mockReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockReviewRepo) ListByListingID(ctx context.Context, listingID string) ([]*model.Review, error) {
	return nil, nil
}

func (m *mockReviewRepo) Create(ctx context.Context, review *model.Review) error {
	return nil
}

func (m *mockReviewRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	return false, nil
}

// mockDenialMetrics はガード拒否の記録を検証するためのモック。
type mockDenialMetrics struct {
	denials []string
}

func (m *mockDenialMetrics) RecordGuardDenial(guard string) {
	m.denials = append(m.denials, guard)
}

func authenticatedSession(userID string) *model.Session {
	return &model.Session{
		ID:        "session-1",
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestRequireLogin_Authenticated(t *testing.T) {
	chain := NewChain(nil, nil, nil)

	outcome := chain.RequireLogin(authenticatedSession("user-1"), "/listings/new")

	if !outcome.Allowed() {
		t.Error("expected authenticated session to be allowed")
	}
}

func TestRequireLogin_Anonymous(t *testing.T) {
	metrics := &mockDenialMetrics{}
	chain := NewChain(nil, nil, metrics)

	session := &model.Session{ID: "session-1", UserID: ""}
	outcome := chain.RequireLogin(session, "/listings/new")

	if outcome.Allowed() {
		t.Fatal("expected anonymous session to be denied")
	}
	if outcome.RedirectPath() != "/login" {
		t.Errorf("expected redirect to /login, got %s", outcome.RedirectPath())
	}
	if outcome.RememberPath() != "/listings/new" {
		t.Errorf("expected remember path /listings/new, got %s", outcome.RememberPath())
	}
	if outcome.Notice().Severity != model.NoticeError {
		t.Errorf("expected error notice, got %s", outcome.Notice().Severity)
	}
	if len(metrics.denials) != 1 || metrics.denials[0] != "login" {
		t.Errorf("expected login denial recorded, got %v", metrics.denials)
	}
}

func TestRequireLogin_NilSession(t *testing.T) {
	chain := NewChain(nil, nil, nil)

	outcome := chain.RequireLogin(nil, "/listings/abc/edit")

	if outcome.Allowed() {
		t.Fatal("expected nil session to be denied")
	}
	if outcome.RedirectPath() != "/login" {
		t.Errorf("expected redirect to /login, got %s", outcome.RedirectPath())
	}
}

func TestRequireListingOwner_Owner(t *testing.T) {
	listings := &mockListingRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Listing, error) {
			return &model.Listing{ID: id, OwnerID: "user-1"}, nil
		},
	}
	chain := NewChain(listings, nil, nil)

	outcome := chain.RequireListingOwner(context.Background(), "user-1", "listing-1")

	if !outcome.Allowed() {
		t.Error("expected owner to be allowed")
	}
}

func TestRequireListingOwner_NotOwner(t *testing.T) {
	listings := &mockListingRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Listing, error) {
			return &model.Listing{ID: id, OwnerID: "user-1"}, nil
		},
	}
	metrics := &mockDenialMetrics{}
	chain := NewChain(listings, nil, metrics)

	outcome := chain.RequireListingOwner(context.Background(), "user-2", "listing-1")

	if outcome.Allowed() {
		t.Fatal("expected non-owner to be denied")
	}
	if outcome.RedirectPath() != "/listings/listing-1" {
		t.Errorf("expected redirect to /listings/listing-1, got %s", outcome.RedirectPath())
	}
	if outcome.RememberPath() != "" {
		t.Errorf("ownership denial should not remember a redirect, got %s", outcome.RememberPath())
	}
	if len(metrics.denials) != 1 || metrics.denials[0] != "listing_owner" {
		t.Errorf("expected listing_owner denial recorded, got %v", metrics.denials)
	}
}

// 削除済みリスティングに対する操作は所有者比較に入らず一覧へ戻す。
func TestRequireListingOwner_NotFound(t *testing.T) {
	listings := &mockListingRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Listing, error) {
			return nil, nil
		},
	}
	chain := NewChain(listings, nil, nil)

	outcome := chain.RequireListingOwner(context.Background(), "user-1", "gone")

	if outcome.Allowed() {
		t.Fatal("expected missing listing to be denied")
	}
	if outcome.RedirectPath() != "/listings" {
		t.Errorf("expected redirect to /listings, got %s", outcome.RedirectPath())
	}
}

func TestRequireListingOwner_RepoError(t *testing.T) {
	listings := &mockListingRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Listing, error) {
			return nil, errors.New("db down")
		},
	}
	chain := NewChain(listings, nil, nil)

	outcome := chain.RequireListingOwner(context.Background(), "user-1", "listing-1")

	if outcome.Allowed() {
		t.Error("expected repository error to deny access")
	}
}

func TestRequireReviewAuthor_Author(t *testing.T) {
	reviews := &mockReviewRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Review, error) {
			return &model.Review{ID: id, ListingID: "listing-1", AuthorID: "user-1"}, nil
		},
	}
	chain := NewChain(nil, reviews, nil)

	outcome := chain.RequireReviewAuthor(context.Background(), "user-1", "listing-1", "review-1")

	if !outcome.Allowed() {
		t.Error("expected author to be allowed")
	}
}

func TestRequireReviewAuthor_NotAuthor(t *testing.T) {
	reviews := &mockReviewRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Review, error) {
			return &model.Review{ID: id, ListingID: "listing-1", AuthorID: "user-1"}, nil
		},
	}
	metrics := &mockDenialMetrics{}
	chain := NewChain(nil, reviews, metrics)

	outcome := chain.RequireReviewAuthor(context.Background(), "user-2", "listing-1", "review-1")

	if outcome.Allowed() {
		t.Fatal("expected non-author to be denied")
	}
	if outcome.RedirectPath() != "/listings/listing-1" {
		t.Errorf("expected redirect to /listings/listing-1, got %s", outcome.RedirectPath())
	}
	if len(metrics.denials) != 1 || metrics.denials[0] != "review_author" {
		t.Errorf("expected review_author denial recorded, got %v", metrics.denials)
	}
}

func TestRequireReviewAuthor_NotFound(t *testing.T) {
	reviews := &mockReviewRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Review, error) {
			return nil, nil
		},
	}
	chain := NewChain(nil, reviews, nil)

	outcome := chain.RequireReviewAuthor(context.Background(), "user-1", "listing-1", "gone")

	if outcome.Allowed() {
		t.Fatal("expected missing review to be denied")
	}
	if outcome.RedirectPath() != "/listings/listing-1" {
		t.Errorf("expected redirect to /listings/listing-1, got %s", outcome.RedirectPath())
	}
}

// 別リスティングのURL経由でレビューを指定した場合は不存在と同じ扱いになる。
func TestRequireReviewAuthor_ListingMismatch(t *testing.T) {
	reviews := &mockReviewRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Review, error) {
			return &model.Review{ID: id, ListingID: "listing-2", AuthorID: "user-1"}, nil
		},
	}
	chain := NewChain(nil, reviews, nil)

	outcome := chain.RequireReviewAuthor(context.Background(), "user-1", "listing-1", "review-1")

	if outcome.Allowed() {
		t.Fatal("expected cross-listing review reference to be denied")
	}
	if outcome.RedirectPath() != "/listings/listing-1" {
		t.Errorf("expected redirect to /listings/listing-1, got %s", outcome.RedirectPath())
	}
}
