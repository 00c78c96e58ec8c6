package controllers

import (
	"log/slog"
	"net/http"
	"strconv"

	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/domain"
)

// CreateGoalRequest is the request body for POST /sites/{siteID}/goals. Exactly one of
// event_name and page_path must be set; currency turns a custom event goal into a revenue goal.
type CreateGoalRequest struct {
	EventName string `json:"event_name"`
	PagePath  string `json:"page_path"`
	Currency  string `json:"currency"`
	// Upsert returns the existing goal instead of failing when it already exists.
	Upsert bool `json:"upsert"`
}

// GoalSuccessResponse is the success envelope for POST /sites/{siteID}/goals.
type GoalSuccessResponse struct {
	Data  *domain.Goal      `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// GoalListSuccessResponse is the success envelope for GET /sites/{siteID}/goals.
type GoalListSuccessResponse struct {
	Data  []*domain.Goal    `json:"data"`
	Error *helpers.APIError `json:"error"`
}

type GoalController struct {
	Logger  *slog.Logger
	Service domain.GoalService
	Access  domain.SiteAccess
}

func NewGoalController(logger *slog.Logger, svc domain.GoalService, access domain.SiteAccess) *GoalController {
	return &GoalController{Logger: logger, Service: svc, Access: access}
}

// ListGoals godoc
// @Summary List goals of a site
// @Description Newest first. With funnels=true each goal carries the funnels it is a step of.
// @Tags goals
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param funnels query bool false "Preload funnels"
// @Success 200 {object} controllers.GoalListSuccessResponse
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /sites/{siteID}/goals [get]
func (c *GoalController) ListGoals(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access)
	if !ok {
		return
	}
	var opts domain.ListGoalsOptions
	if v := r.URL.Query().Get("funnels"); v != "" {
		preload, err := strconv.ParseBool(v)
		if err != nil {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "funnels must be a boolean")
			return
		}
		opts.PreloadFunnels = preload
	}
	goals, err := c.Service.GoalsForSite(r.Context(), siteID, opts)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if goals == nil {
		goals = []*domain.Goal{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, goals)
}

// CreateGoal godoc
// @Summary Create a goal
// @Description Creates a custom event or pageview goal. Revenue goals require the revenue_goals feature.
// @Tags goals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param goal body CreateGoalRequest true "Goal"
// @Success 201 {object} controllers.GoalSuccessResponse
// @Failure 402 {object} helpers.APIResponse "error.code: upgrade_required"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 422 {object} helpers.APIResponse "error.code: validation_failed"
// @Router /sites/{siteID}/goals [post]
func (c *GoalController) CreateGoal(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access, editors...)
	if !ok {
		return
	}
	var req CreateGoalRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	params := domain.GoalParams{EventName: req.EventName, PagePath: req.PagePath, Currency: req.Currency}
	goal, err := c.Service.CreateGoal(r.Context(), siteID, params, domain.GoalOptions{Upsert: req.Upsert})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, goal)
}

// DeleteGoal godoc
// @Summary Delete a goal
// @Description Deletes the goal and its funnel steps. Funnels left with too few steps are deleted too.
// @Tags goals
// @Produce json
// @Security BearerAuth
// @Param siteID path string true "Site ID"
// @Param goalID path int true "Goal ID"
// @Success 200 {object} controllers.DeletedResponse
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /sites/{siteID}/goals/{goalID} [delete]
func (c *GoalController) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	siteID, _, ok := authorizeSite(w, r, c.Logger, c.Access, editors...)
	if !ok {
		return
	}
	goalID, ok := helpers.PathInt64(w, r, "goalID")
	if !ok {
		return
	}
	if err := c.Service.DeleteGoal(r.Context(), goalID, siteID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, DeletedResponse{Status: "deleted"})
}
