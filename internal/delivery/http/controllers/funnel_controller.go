package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/domain"
)

// CreateFunnelRequest is the request body for POST /sites/{siteID}/funnels. goal_ids are the
// steps in order.
type CreateFunnelRequest struct {
	Name    string  `json:"name"`
	GoalIDs []int64 `json:"goal_ids"`
}

// Validate implements Validator. Step count and goal ownership are checked by the service.
func (c CreateFunnelRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "name is required")
	}
	if len(c.GoalIDs) == 0 {
		errs = append(errs, "goal_ids is required")
	}
	return errs
}

// FunnelSuccessResponse is the success envelope for a single funnel.
type FunnelSuccessResponse struct {
	Data  *domain.Funnel    `json:"data"`
	Error *helpers.APIError `json:"error"`
}

type FunnelController struct {
	Logger  *slog.Logger
	Service domain.FunnelService
	Access  domain.SiteAccess
}

func NewFunnelController(logger *slog.Logger, svc domain.FunnelService, access domain.SiteAccess) *FunnelController {
	return &FunnelController{Logger: logger, Service: svc, Access: access}
}

// ListFunnels godoc
// @Summary List funnels of a site
// @Tags funnels
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Success 200 {object} helpers.APIResponse "data contains the funnels with their steps"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /sites/{siteID}/funnels [get]
func (c *FunnelController) ListFunnels(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access)
	if !ok {
		return
	}
	funnels, err := c.Service.ListFunnels(r.Context(), siteID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if funnels == nil {
		funnels = []*domain.Funnel{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, funnels)
}

// GetFunnel godoc
// @Summary Get a funnel
// @Tags funnels
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param funnelID path int true "Funnel ID"
// @Success 200 {object} controllers.FunnelSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /sites/{siteID}/funnels/{funnelID} [get]
func (c *FunnelController) GetFunnel(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access)
	if !ok {
		return
	}
	funnelID, ok := helpers.PathInt64(w, r, "funnelID")
	if !ok {
		return
	}
	funnel, err := c.Service.GetFunnel(r.Context(), funnelID, siteID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, funnel)
}

// CreateFunnel godoc
// @Summary Create a funnel
// @Description Creates a funnel of 2 to 8 distinct goals of the site. Requires the funnels feature.
// @Tags funnels
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param funnel body CreateFunnelRequest true "Funnel"
// @Success 201 {object} controllers.FunnelSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 402 {object} helpers.APIResponse "error.code: upgrade_required"
// @Failure 422 {object} helpers.APIResponse "error.code: validation_failed"
// @Router /sites/{siteID}/funnels [post]
func (c *FunnelController) CreateFunnel(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access, editors...)
	if !ok {
		return
	}
	var req CreateFunnelRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	funnel, err := c.Service.CreateFunnel(r.Context(), siteID, req.Name, req.GoalIDs)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, funnel)
}

// DeleteFunnel godoc
// @Summary Delete a funnel
// @Tags funnels
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param funnelID path int true "Funnel ID"
// @Success 200 {object} controllers.DeletedResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /sites/{siteID}/funnels/{funnelID} [delete]
func (c *FunnelController) DeleteFunnel(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access, editors...)
	if !ok {
		return
	}
	funnelID, ok := helpers.PathInt64(w, r, "funnelID")
	if !ok {
		return
	}
	if err := c.Service.DeleteFunnel(r.Context(), funnelID, siteID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, DeletedResponse{Status: "deleted"})
}
