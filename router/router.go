// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medtrail/consentinel/controller"
	"github.com/medtrail/consentinel/middleware"
)

func SetupRouter(
	controllers *controller.Controllers,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))

	api := router.Group("/api/v1")

	// The privacy notice is the one public surface.
	controllers.Privacy.RegisterRoutes(api)

	authed := api.Group("")
	authed.Use(middleware.Authentication())

	controllers.Consent.RegisterRoutes(authed)
	controllers.Access.RegisterRoutes(authed)

	// Policy and organization management is an operator surface, not a
	// caller surface.
	admin := authed.Group("")
	admin.Use(middleware.RequireRole("admin"))

	controllers.Policy.RegisterRoutes(admin)
	controllers.Org.RegisterRoutes(admin)

	// Compliance officers read the audit trail but cannot touch policies.
	oversight := authed.Group("")
	oversight.Use(middleware.RequireRole("admin", "compliance_officer"))

	controllers.Audit.RegisterRoutes(oversight)
	controllers.Compliance.RegisterRoutes(oversight)

	return router
}
