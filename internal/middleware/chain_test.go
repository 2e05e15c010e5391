package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/yadoman/internal/model"
)

// Session -> CSRF のチェーンを素のhttp.Handler合成で検証する。
// セッションなしは拒否ではなく匿名発行になる（保護判断はガードチェーンの仕事）。
func TestSessionCSRFChain(t *testing.T) {
	tests := []struct {
		name            string
		method          string
		path            string
		sessionCookie   string
		csrfToken       string // 空なら付けない
		wantStatus      int
		wantUserID      string
		wantAnonymIssue bool
	}{
		{
			name:          "認証済みGETはユーザーIDを解決して通る",
			method:        http.MethodGet,
			path:          "/listings/listing-1",
			sessionCookie: "chain-session",
			wantStatus:    http.StatusOK,
			wantUserID:    "user-chain",
		},
		{
			name:            "セッションなしGETは匿名セッション発行で通る",
			method:          http.MethodGet,
			path:            "/listings",
			wantStatus:      http.StatusOK,
			wantAnonymIssue: true,
		},
		{
			name:          "トークン付きPOSTは通る",
			method:        http.MethodPost,
			path:          "/listings/listing-1/reviews",
			sessionCookie: "chain-session",
			csrfToken:     "chain-csrf-token",
			wantStatus:    http.StatusOK,
			wantUserID:    "user-chain",
		},
		{
			name:          "トークンなしPOSTはCSRF層で止まる",
			method:        http.MethodPost,
			path:          "/listings/listing-1/reviews",
			sessionCookie: "chain-session",
			wantStatus:    http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockSessionResolver{
				resolveFn: func(ctx context.Context, r *http.Request) (*model.Session, error) {
					cookie, err := r.Cookie("session_id")
					if err != nil || cookie.Value != "chain-session" {
						return nil, nil
					}
					return &model.Session{
						ID:        "chain-session",
						UserID:    "user-chain",
						ExpiresAt: time.Now().Add(1 * time.Hour),
					}, nil
				},
			}

			var gotUserID string
			handlerCalled := false
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				gotUserID, _ = UserIDFromContext(r.Context())
				if SessionFromContext(r.Context()) == nil {
					t.Error("expected a session in context")
				}
				w.WriteHeader(http.StatusOK)
			})

			sessionMW := NewSessionMiddleware(resolver)
			csrfMW := NewCSRFMiddleware(CSRFConfig{CookieSecure: false})
			chain := sessionMW(csrfMW(inner))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.sessionCookie != "" {
				req.AddCookie(&http.Cookie{Name: "session_id", Value: tt.sessionCookie})
			}
			if tt.csrfToken != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.csrfToken})
				req.Header.Set(csrfHeaderName, tt.csrfToken)
			}
			w := httptest.NewRecorder()

			chain.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden && handlerCalled {
				t.Error("handler should not run when the chain rejects")
			}
			if gotUserID != tt.wantUserID {
				t.Errorf("user_id = %q, want %q", gotUserID, tt.wantUserID)
			}
			if tt.wantAnonymIssue && len(resolver.issuedUserIDs) != 1 {
				t.Errorf("expected one anonymous session issue, got %v", resolver.issuedUserIDs)
			}
		})
	}
}
