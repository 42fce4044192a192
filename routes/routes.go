package routes

import (
	"time"

	"statistics-workflow-api/config"
	"statistics-workflow-api/controllers"
	"statistics-workflow-api/middleware"
	"statistics-workflow-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies is everything the HTTP layer needs, built once in main.
type Dependencies struct {
	DB          *gorm.DB
	Directory   middleware.ActorLookup
	JWTSecret   string
	Screens     *config.ScreenCatalog
	Workflow    *services.WorkflowService
	Records     *services.RecordService
	Broadcaster *services.Broadcaster
	KeepAlive   time.Duration
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	workflow := controllers.NewWorkflowController(deps.Workflow, deps.Screens)
	records := controllers.NewRecordController(deps.Records)
	events := controllers.NewEventsController(deps.Broadcaster, deps.KeepAlive)

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		v1.GET("/health", controllers.Health(deps.DB))

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(deps.Directory, deps.JWTSecret))
		{
			protected.GET("/screens", workflow.ListScreens)
			protected.GET("/workflow/statuses", workflow.ListStatuses)
			protected.GET("/workflow/roles", workflow.ListRoles)
			protected.GET("/workflow/events", events.Stream)

			screens := protected.Group("/screens/:code")
			{
				screens.POST("/workflow/actions", workflow.PerformAction)
				screens.GET("/workflow/status", workflow.GetStatus)
				screens.GET("/workflow/history", workflow.GetHistory)
				screens.GET("/workflow/access", workflow.GetAccess)
				screens.GET("/workflow/consistency", middleware.RequireRole(services.RoleAdmin), workflow.CheckConsistency)

				screens.GET("/records", records.List)
				screens.GET("/records/:id", records.Get)
				screens.GET("/records/:id/history", records.History)
				screens.POST("/records", records.Create)
				screens.PUT("/records/:id", records.Update)
				screens.DELETE("/records/:id", records.Delete)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"success": false,
			"error":   "NotFound",
			"message": "Endpoint not found",
		})
	})
}
