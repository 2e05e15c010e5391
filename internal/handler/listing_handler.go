package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/yadoman/internal/listing"
	"github.com/hitoshi/yadoman/internal/middleware"
	"github.com/hitoshi/yadoman/internal/model"
	"github.com/hitoshi/yadoman/internal/validate"
)

// ListingServiceInterface はリスティングハンドラーが必要とするサービスインターフェース。
type ListingServiceInterface interface {
	List(ctx context.Context) ([]*model.Listing, error)
	Get(ctx context.Context, id string) (*listing.Detail, error)
	Create(ctx context.Context, ownerID string, p listing.Payload) (*model.Listing, error)
	Update(ctx context.Context, id string, p listing.Payload) (*model.Listing, error)
	Delete(ctx context.Context, id string) error
}

// ListingMetrics はリスティング操作の計測インターフェース。nilの場合は計測しない。
type ListingMetrics interface {
	RecordListingCreated()
}

// ListingHandler はリスティング管理のHTTPハンドラー。
type ListingHandler struct {
	service  ListingServiceInterface
	sessions SessionManagerInterface
	metrics  ListingMetrics
}

// NewListingHandler はListingHandlerを生成する。metricsはnilでもよい。
func NewListingHandler(service ListingServiceInterface, sessions SessionManagerInterface, metrics ListingMetrics) *ListingHandler {
	return &ListingHandler{
		service:  service,
		sessions: sessions,
		metrics:  metrics,
	}
}

// listingResponse はリスティング情報のAPIレスポンス。
type listingResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Price       int64     `json:"price"`
	Location    string    `json:"location"`
	Country     string    `json:"country"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// reviewResponse はレビュー情報のAPIレスポンス。
type reviewResponse struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	AuthorID  string    `json:"author_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func toListingResponse(l *model.Listing) listingResponse {
	return listingResponse{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		ImageURL:    l.ImageURL,
		Price:       l.Price,
		Location:    l.Location,
		Country:     l.Country,
		OwnerID:     l.OwnerID,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func toReviewResponses(reviews []*model.Review) []reviewResponse {
	res := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		res = append(res, reviewResponse{
			ID:        rv.ID,
			ListingID: rv.ListingID,
			AuthorID:  rv.AuthorID,
			Rating:    rv.Rating,
			Comment:   rv.Comment,
			CreatedAt: rv.CreatedAt,
		})
	}
	return res
}

// Index はリスティング一覧を返す。
// 未表示のフラッシュ通知もあわせて返し、セッションからクリアする。
// GET /listings
func (h *ListingHandler) Index(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	notices := h.popNotices(r)

	res := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		res = append(res, toListingResponse(l))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listings": res,
		"notices":  toNoticeResponses(notices),
	})
}

// New は作成フォームの状態（未表示のフラッシュ通知）を返す。
// GET /listings/new
func (h *ListingHandler) New(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"notices": toNoticeResponses(h.popNotices(r)),
	})
}

// Show はリスティング詳細（レビュー込み）を返す。
// 存在しない場合はエラーではなく一覧へリダイレクトする。
// GET /listings/{id}
func (h *ListingHandler) Show(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	detail, err := h.service.Get(r.Context(), listingID)
	if err != nil {
		h.handleGetError(w, r, err)
		return
	}

	notices := h.popNotices(r)

	writeJSON(w, http.StatusOK, map[string]any{
		"listing": toListingResponse(detail.Listing),
		"reviews": toReviewResponses(detail.Reviews),
		"notices": toNoticeResponses(notices),
	})
}

// Edit は編集フォーム用にリスティングを返す。所有者ガードの後に呼ばれる。
// GET /listings/{id}/edit
func (h *ListingHandler) Edit(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	detail, err := h.service.Get(r.Context(), listingID)
	if err != nil {
		h.handleGetError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listing": toListingResponse(detail.Listing),
		"notices": toNoticeResponses(h.popNotices(r)),
	})
}

// handleGetError はリスティング取得エラーを処理する。
// 不存在は一覧へのリダイレクトで回復し、それ以外はエラーレスポンスを返す。
func (h *ListingHandler) handleGetError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeListingNotFound {
		session := middleware.SessionFromContext(r.Context())
		redirectWithNotice(w, r, h.sessions, session, "/listings",
			errorNotice("リスティングが見つかりません。"))
		return
	}
	handleServiceError(w, err)
}

// Create は新規リスティングを作成する。
// POST /listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError())
		return
	}

	payload, ok := validate.FromContext[listing.Payload](r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("リクエストボディの形式が正しくありません。"))
		return
	}

	_, err = h.service.Create(r.Context(), userID, payload)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordListingCreated()
	}

	session := middleware.SessionFromContext(r.Context())
	redirectWithNotice(w, r, h.sessions, session, "/listings",
		successNotice("リスティングを作成しました。"))
}

// Update はリスティングを更新する。
// PUT /listings/{id}
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	payload, ok := validate.FromContext[listing.Payload](r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("リクエストボディの形式が正しくありません。"))
		return
	}

	if _, err := h.service.Update(r.Context(), listingID, payload); err != nil {
		handleServiceError(w, err)
		return
	}

	session := middleware.SessionFromContext(r.Context())
	redirectWithNotice(w, r, h.sessions, session, "/listings",
		successNotice("リスティングを更新しました。"))
}

// Delete はリスティングを削除する。関連レビューも同時に削除される。
// DELETE /listings/{id}
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), listingID); err != nil {
		handleServiceError(w, err)
		return
	}

	session := middleware.SessionFromContext(r.Context())
	redirectWithNotice(w, r, h.sessions, session, "/listings",
		successNotice("リスティングを削除しました。"))
}

// popNotices は未表示のフラッシュ通知を取り出す。失敗時は空を返す。
func (h *ListingHandler) popNotices(r *http.Request) []model.Notice {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		return nil
	}
	notices, err := h.sessions.PopNotices(r.Context(), session)
	if err != nil {
		return nil
	}
	return notices
}
