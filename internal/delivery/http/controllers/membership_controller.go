package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/delivery/http/middleware"
	"analyticsadmin/internal/domain"
)

// TransferOwnershipRequest is the request body for POST /sites/{siteID}/ownership.
type TransferOwnershipRequest struct {
	UserID string `json:"user_id"`
}

// Validate implements Validator.
func (t TransferOwnershipRequest) Validate() []string {
	if strings.TrimSpace(t.UserID) == "" {
		return []string{"user_id is required"}
	}
	return nil
}

// UpdateRoleRequest is the request body for PATCH /sites/{siteID}/memberships/{userID}.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// Validate implements Validator. Unknown roles are rejected by the service as a field error.
func (u UpdateRoleRequest) Validate() []string {
	if strings.TrimSpace(u.Role) == "" {
		return []string{"role is required"}
	}
	return nil
}

// MembershipSuccessResponse is the success envelope of the membership endpoints.
type MembershipSuccessResponse struct {
	Data  *domain.Membership `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

type MembershipController struct {
	Logger   *slog.Logger
	Service  domain.MembershipService
	Access   domain.SiteAccess
	Selfhost bool
}

func NewMembershipController(logger *slog.Logger, svc domain.MembershipService, access domain.SiteAccess, selfhost bool) *MembershipController {
	return &MembershipController{
		Logger:   logger,
		Service:  svc,
		Access:   access,
		Selfhost: selfhost,
	}
}

// TransferOwnership godoc
// @Summary Transfer site ownership
// @Description Makes user_id the owner of the site. The previous owner becomes an admin. Only the current owner may transfer.
// @Tags memberships
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param body body TransferOwnershipRequest true "New owner"
// @Success 200 {object} controllers.MembershipSuccessResponse "data contains the new owner membership"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sites/{siteID}/ownership [post]
func (c *MembershipController) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access, domain.RoleOwner)
	if !ok {
		return
	}
	var req TransferOwnershipRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	m, err := c.Service.TransferOwnership(r.Context(), siteID, strings.TrimSpace(req.UserID), domain.TransferOptions{Selfhost: c.Selfhost})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, m)
}

// AcceptInvitation godoc
// @Summary Accept an invitation
// @Description Accepts the invitation identified by token for the authenticated user. Owner invitations transfer ownership.
// @Tags memberships
// @Produce json
// @Security BearerAuth
// @Param token path string true "Invitation token"
// @Success 200 {object} controllers.MembershipSuccessResponse "data contains the resulting membership"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /invitations/{token}/accept [post]
func (c *MembershipController) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing token")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	m, err := c.Service.AcceptInvitation(r.Context(), token, userID, domain.AcceptOptions{Selfhost: c.Selfhost})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, m)
}

// UpdateRole godoc
// @Summary Change a member's role
// @Description Sets the role of a site member. Owners cannot be granted this way; use the ownership endpoint.
// @Tags memberships
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param userID path string true "Member user ID"
// @Param body body UpdateRoleRequest true "New role (admin or viewer)"
// @Success 200 {object} controllers.MembershipSuccessResponse "data contains the updated membership"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 422 {object} helpers.APIResponse "error.code: validation_failed"
// @Router /sites/{siteID}/memberships/{userID} [patch]
func (c *MembershipController) UpdateRole(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("siteID")
	targetID := r.PathValue("userID")
	if siteID == "" || targetID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing siteID or userID")
		return
	}
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req UpdateRoleRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	m, err := c.Service.UpdateRole(r.Context(), siteID, actorID, targetID, role)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, m)
}
