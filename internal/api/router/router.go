package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tailorjd/tailorjd-be/internal/api/handler"
	"github.com/tailorjd/tailorjd-be/internal/api/middleware"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, jwtSecret string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "tailorjd-api",
		})
	})

	// Initialize handlers
	rewriteHandler := handler.NewRewriteHandler(deps)
	creditsHandler := handler.NewCreditsHandler(deps)

	// API routes, all behind token auth
	api := r.Group("/api")
	api.Use(middleware.Auth(jwtSecret))
	{
		rewrites := api.Group("/rewrites")
		{
			// POST /api/rewrites - Submit a rewrite job
			rewrites.POST("", rewriteHandler.SubmitRewrite)

			// POST /api/rewrites/draft - Submit a draft job
			rewrites.POST("/draft", rewriteHandler.SubmitDraft)

			// GET /api/rewrites/job-status/:job_id - Poll job state
			rewrites.GET("/job-status/:job_id", rewriteHandler.JobStatus)

			// POST /api/rewrites/cancel/:job_id - Cancel a running job
			rewrites.POST("/cancel/:job_id", rewriteHandler.CancelJob)

			// GET /api/rewrites/doc-collections - List generated documents
			rewrites.GET("/doc-collections", rewriteHandler.DocCollections)
		}

		credits := api.Group("/credits")
		{
			// GET /api/credits/read-credits - Read the caller's balance
			credits.GET("/read-credits", creditsHandler.ReadCredits)

			// POST /api/credits/use-credits - Spend the caller's credits
			credits.POST("/use-credits", creditsHandler.UseCredits)

			admin := credits.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				// POST /api/credits/admin/add-credits - Grant credits to a user
				admin.POST("/add-credits", creditsHandler.AddCredits)
			}
		}
	}

	return r
}
