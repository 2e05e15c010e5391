// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/yadoman/internal/model"
)

// SessionManagerInterface はハンドラーが必要とするセッション管理インターフェース。
// session.Managerの部分集合として定義する。
type SessionManagerInterface interface {
	Issue(ctx context.Context, userID string) (*model.Session, error)
	Destroy(ctx context.Context, sessionID string) error
	PendingRedirect(session *model.Session) string
	AddNotice(ctx context.Context, session *model.Session, notice model.Notice) error
	PopNotices(ctx context.Context, session *model.Session) ([]model.Notice, error)
	SetCookie(w http.ResponseWriter, session *model.Session)
	ClearCookie(w http.ResponseWriter)
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// noticeResponse はフラッシュ通知のレスポンス表現。
type noticeResponse struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

func toNoticeResponses(notices []model.Notice) []noticeResponse {
	res := make([]noticeResponse, 0, len(notices))
	for _, n := range notices {
		res = append(res, noticeResponse{
			Severity: string(n.Severity),
			Text:     n.Text,
		})
	}
	return res
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse はAPIエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIエラーコードをHTTPステータスコードに変換する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case model.ErrCodeInvalidImageURL:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeDuplicateUser:
		return http.StatusConflict
	case model.ErrCodeListingNotFound, model.ErrCodeReviewNotFound,
		model.ErrCodeUserNotFound, model.ErrCodePageNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// redirectWithNotice はフラッシュ通知を積んで303 See Otherでリダイレクトする。
// 通知の保存に失敗してもリダイレクト自体は行う。
func redirectWithNotice(w http.ResponseWriter, r *http.Request, sessions SessionManagerInterface, session *model.Session, path string, notice model.Notice) {
	if session != nil {
		if err := sessions.AddNotice(r.Context(), session, notice); err != nil {
			slog.Error("failed to add notice", slog.String("error", err.Error()))
		}
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func successNotice(text string) model.Notice {
	return model.Notice{Severity: model.NoticeSuccess, Text: text}
}

func errorNotice(text string) model.Notice {
	return model.Notice{Severity: model.NoticeError, Text: text}
}

// NotFoundHandler は未定義ルートへの404レスポンスを返すハンドラー。
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeAPIErrorResponse(w, http.StatusNotFound, model.NewPageNotFoundError())
}
