package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/delivery/http/middleware"
	"analyticsadmin/internal/domain"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeAccess grants roles from a (siteID/userID) -> role map.
type fakeAccess struct {
	roles map[string]domain.Role
}

func (f *fakeAccess) Authorize(ctx context.Context, siteID, userID string, roles ...domain.Role) (*domain.Membership, error) {
	role, ok := f.roles[siteID+"/"+userID]
	if !ok {
		return nil, domain.ErrForbidden
	}
	if len(roles) > 0 {
		allowed := false
		for _, r := range roles {
			allowed = allowed || r == role
		}
		if !allowed {
			return nil, domain.ErrForbidden
		}
	}
	return &domain.Membership{SiteID: siteID, UserID: userID, Role: role}, nil
}

// siteRoles is the default access table: alice owns site-1, bob administers it, carol views it.
func siteRoles() *fakeAccess {
	return &fakeAccess{roles: map[string]domain.Role{
		"site-1/alice": domain.RoleOwner,
		"site-1/bob":   domain.RoleAdmin,
		"site-1/carol": domain.RoleViewer,
	}}
}

// call routes one request through a mux registered with pattern, so path values resolve as
// in production. An empty userID sends the request unauthenticated.
func call(t *testing.T, pattern string, h http.HandlerFunc, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if userID != "" {
		req = req.WithContext(middleware.SetUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

// decode reads the response envelope, unmarshalling data into dest when non-nil.
func decode(t *testing.T, rr *httptest.ResponseRecorder, dest any) *helpers.APIError {
	t.Helper()
	var envelope struct {
		Data  json.RawMessage   `json:"data"`
		Error *helpers.APIError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope))
	if dest != nil && envelope.Error == nil {
		require.NoError(t, json.Unmarshal(envelope.Data, dest))
	}
	return envelope.Error
}
