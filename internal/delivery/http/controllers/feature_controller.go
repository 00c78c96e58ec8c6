package controllers

import (
	"log/slog"
	"net/http"

	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/domain"
)

// SetFeatureRequest is the request body for PUT /sites/{siteID}/features/{feature}.
// enabled is a pointer so a missing value is rejected instead of read as false.
type SetFeatureRequest struct {
	Enabled *bool `json:"enabled"`
}

// Validate implements Validator.
func (s SetFeatureRequest) Validate() []string {
	if s.Enabled == nil {
		return []string{"enabled is required"}
	}
	return nil
}

// SiteSuccessResponse is the success envelope for feature toggles.
type SiteSuccessResponse struct {
	Data  *domain.Site      `json:"data"`
	Error *helpers.APIError `json:"error"`
}

type FeatureController struct {
	Logger  *slog.Logger
	Service domain.FeatureService
	Access  domain.SiteAccess
}

func NewFeatureController(logger *slog.Logger, svc domain.FeatureService, access domain.SiteAccess) *FeatureController {
	return &FeatureController{Logger: logger, Service: svc, Access: access}
}

// SetFeature godoc
// @Summary Enable or disable a site feature
// @Description feature is one of funnels, props, goals. Enabling checks the site owner's plan.
// @Tags features
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param feature path string true "Feature key"
// @Param body body SetFeatureRequest true "Toggle"
// @Success 200 {object} controllers.SiteSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request (unknown feature)"
// @Failure 402 {object} helpers.APIResponse "error.code: upgrade_required"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /sites/{siteID}/features/{feature} [put]
func (c *FeatureController) SetFeature(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access, editors...)
	if !ok {
		return
	}
	var req SetFeatureRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	site, err := c.Service.SetFeature(r.Context(), siteID, r.PathValue("feature"), *req.Enabled)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, site)
}
