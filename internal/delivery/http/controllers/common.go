package controllers

import (
	"log/slog"
	"net/http"

	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/delivery/http/middleware"
	"analyticsadmin/internal/domain"
)

// DeletedResponse is the response body of every DELETE endpoint.
type DeletedResponse struct {
	Status string `json:"status"`
}

// authorizeSite resolves the caller and checks their role on the site from the siteID path
// value. It writes the error response and returns ok=false when the caller may not proceed.
func authorizeSite(w http.ResponseWriter, r *http.Request, logger *slog.Logger, access domain.SiteAccess, roles ...domain.Role) (siteID, userID string, ok bool) {
	siteID = r.PathValue("siteID")
	if siteID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing siteID")
		return "", "", false
	}
	userID, ok = middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return "", "", false
	}
	if _, err := access.Authorize(r.Context(), siteID, userID, roles...); err != nil {
		helpers.WriteServiceError(w, r, logger, err)
		return "", "", false
	}
	return siteID, userID, true
}

// editors may change site configuration.
var editors = []domain.Role{domain.RoleOwner, domain.RoleAdmin}
