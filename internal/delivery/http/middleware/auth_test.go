package middleware

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/domain"
)

// fakeTokenVerifier accepts exactly one token.
type fakeTokenVerifier struct {
	token  string
	userID string
}

func (f *fakeTokenVerifier) Verify(token string) (string, error) {
	if token != f.token {
		return "", fmt.Errorf("%w: signature mismatch", domain.ErrInvalidToken)
	}
	return f.userID, nil
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := &fakeTokenVerifier{token: "valid-token", userID: "user-123"}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantMsg    string
		wantUserID string
	}{
		{name: "valid token", authHeader: "Bearer valid-token", wantStatus: http.StatusOK, wantUserID: "user-123"},
		{name: "lower case scheme", authHeader: "bearer valid-token", wantStatus: http.StatusOK, wantUserID: "user-123"},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantMsg: "missing authorization header"},
		{name: "basic auth", authHeader: "Basic abc", wantStatus: http.StatusUnauthorized, wantMsg: "invalid authorization format"},
		{name: "empty token", authHeader: "Bearer   ", wantStatus: http.StatusUnauthorized, wantMsg: "missing token"},
		{name: "rejected token", authHeader: "Bearer forged", wantStatus: http.StatusUnauthorized, wantMsg: "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID string
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				gotUserID, _ = UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/sites/site-1/goals", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			RequireAuth(verifier, logger)(next).ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, nextCalled)
			assert.Equal(t, tt.wantUserID, gotUserID)
			if tt.wantMsg != "" {
				var envelope helpers.APIResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope))
				require.NotNil(t, envelope.Error)
				assert.Equal(t, helpers.ErrCodeUnauthorized, envelope.Error.Code)
				assert.Equal(t, tt.wantMsg, envelope.Error.Message)
			}
		})
	}
}
