package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/yadoman/internal/middleware"
	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/review"
	"github.com/hitoshi/yadoman/internal/validate"
)

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	Create(ctx context.Context, listingID, authorID string, p review.Payload) (*model.Review, error)
	Delete(ctx context.Context, reviewID string) error
}

// ReviewMetrics はレビュー操作の計測インターフェース。nilの場合は計測しない。
type ReviewMetrics interface {
	RecordReviewCreated()
}

// ReviewHandler はレビュー投稿・削除のHTTPハンドラー。
type ReviewHandler struct {
	service  ReviewServiceInterface
	sessions SessionManagerInterface
	metrics  ReviewMetrics
}

// NewReviewHandler はReviewHandlerを生成する。metricsはnilでもよい。
func NewReviewHandler(service ReviewServiceInterface, sessions SessionManagerInterface, metrics ReviewMetrics) *ReviewHandler {
	return &ReviewHandler{
		service:  service,
		sessions: sessions,
		metrics:  metrics,
	}
}

// Create はリスティングへレビューを投稿する。
// 投稿中にリスティングが削除されていた場合は一覧へ戻す。
// POST /listings/{id}/reviews
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError())
		return
	}

	payload, ok := validate.FromContext[review.Payload](r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("リクエストボディの形式が正しくありません。"))
		return
	}

	session := middleware.SessionFromContext(r.Context())

	if _, err := h.service.Create(r.Context(), listingID, userID, payload); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeListingNotFound {
			redirectWithNotice(w, r, h.sessions, session, "/listings",
				errorNotice("リスティングが見つかりません。"))
			return
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordReviewCreated()
	}

	redirectWithNotice(w, r, h.sessions, session, "/listings/"+listingID,
		successNotice("レビューを投稿しました。"))
}

// Delete はレビューを削除する。
// DELETE /listings/{id}/reviews/{reviewId}
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")
	reviewID := chi.URLParam(r, "reviewId")

	if err := h.service.Delete(r.Context(), reviewID); err != nil {
		handleServiceError(w, err)
		return
	}

	session := middleware.SessionFromContext(r.Context())
	redirectWithNotice(w, r, h.sessions, session, "/listings/"+listingID,
		successNotice("レビューを削除しました。"))
}
