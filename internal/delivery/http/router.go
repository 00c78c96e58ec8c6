package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"analyticsadmin/internal/delivery/http/controllers"
	"analyticsadmin/internal/delivery/http/helpers"
	"analyticsadmin/internal/delivery/http/middleware"
	"analyticsadmin/internal/domain"
)

// Controllers groups the handlers mounted by NewRouter.
type Controllers struct {
	Memberships *controllers.MembershipController
	Goals       *controllers.GoalController
	Funnels     *controllers.FunnelController
	Features    *controllers.FeatureController
}

// RouterConfig carries the cross-cutting settings of the HTTP stack.
type RouterConfig struct {
	Verifier       domain.TokenVerifier
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter initializes the HTTP router with all application routes. Every API route requires
// a bearer token; /health and /swagger/ are public.
func NewRouter(c Controllers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(cfg.Verifier, cfg.Logger)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(h))
	}

	// Memberships
	handle("POST /sites/{siteID}/ownership", c.Memberships.TransferOwnership)
	handle("POST /invitations/{token}/accept", c.Memberships.AcceptInvitation)
	handle("PATCH /sites/{siteID}/memberships/{userID}", c.Memberships.UpdateRole)

	// Goals
	handle("GET /sites/{siteID}/goals", c.Goals.ListGoals)
	handle("POST /sites/{siteID}/goals", c.Goals.CreateGoal)
	handle("DELETE /sites/{siteID}/goals/{goalID}", c.Goals.DeleteGoal)

	// Funnels
	handle("GET /sites/{siteID}/funnels", c.Funnels.ListFunnels)
	handle("POST /sites/{siteID}/funnels", c.Funnels.CreateFunnel)
	handle("GET /sites/{siteID}/funnels/{funnelID}", c.Funnels.GetFunnel)
	handle("DELETE /sites/{siteID}/funnels/{funnelID}", c.Funnels.DeleteFunnel)

	// Features
	handle("PUT /sites/{siteID}/features/{feature}", c.Features.SetFeature)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return middleware.CORS(cfg.AllowedOrigins, middleware.Logging(cfg.Logger, mux))
}
