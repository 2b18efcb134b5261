package routes

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/handlers"
	"github.com/trihai306/agentphone-backend/internal/middleware"
)

// CORSMiddleware tells the browser which frontend origin may call us.
func CORSMiddleware() gin.HandlerFunc {
	// The dashboard origin is configurable; default covers local dev.
	allowedOrigin := os.Getenv("FRONTEND_ORIGIN")
	if allowedOrigin == "" {
		allowedOrigin = "http://localhost:5173"
	}

	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		// The browser sends a preflight OPTIONS request first; reply 204.
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func SetupRouter(h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	// CORS must be the very first thing the router uses.
	router.Use(CORSMiddleware())

	// Uploaded reference images are served statically.
	router.Static("/uploads", "./uploads")

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		// --- Auth Routes (Public) ---
		v1.POST("/auth/register", h.Register)
		v1.POST("/auth/login", h.Login)

		// --- Public Package Catalog ---
		v1.GET("/packages", h.GetPackages)

		// --- Protected Routes (Login Required) ---
		auth := v1.Group("/")
		auth.Use(middleware.AuthMiddleware(h.DB))
		{
			// --- Profile ---
			auth.GET("/me", h.GetMyProfile)
			auth.PATCH("/me", h.UpdateMyProfile)

			// --- Devices ---
			auth.POST("/devices", h.RegisterDevice)
			auth.GET("/devices", h.GetMyDevices)
			auth.PATCH("/devices/:id/status", h.UpdateDeviceStatus)
			auth.DELETE("/devices/:id", h.DeleteDevice)

			// --- Flows ---
			auth.POST("/flows", h.CreateFlow)
			auth.GET("/flows", h.GetMyFlows)
			auth.PATCH("/flows/:id", h.UpdateFlow)
			auth.DELETE("/flows/:id", h.DeleteFlow)
			auth.POST("/flows/:id/assign", h.AssignFlowToDevice)

			// --- Wallet ---
			auth.GET("/wallet", h.GetMyWallet)
			auth.POST("/wallet/topup", h.TopUpWallet)

			// --- Notifications ---
			auth.GET("/notifications", h.GetMyNotifications)
			auth.PATCH("/notifications/:id/read", h.MarkNotificationAsRead)

			// --- AI Generations ---
			auth.POST("/generations", h.CreateGeneration)
			auth.GET("/generations", h.GetMyGenerations)
			auth.GET("/generations/:id", h.GetGeneration)

			// --- AI Scenarios ---
			auth.POST("/scenarios", h.CreateScenario)
			auth.GET("/scenarios", h.GetMyScenarios)
			auth.GET("/scenarios/:id", h.GetScenario)

			// --- Packages ---
			auth.GET("/packages/mine", h.GetMyPackages)
			auth.POST("/packages/:id/purchase", h.PurchasePackage)
			auth.POST("/packages/activate/:id", h.ActivatePackage)

			// --- Uploads ---
			auth.POST("/upload", h.UploadFile)

			// --- Admin Routes (Admin Role Required) ---
			admin := auth.Group("/admin")
			admin.Use(middleware.AdminMiddleware())
			{
				admin.GET("/stats", h.GetPlatformStats)
				admin.GET("/users", h.GetAllUsers)
				admin.PATCH("/users/:id/suspend", h.SuspendUser)
				admin.PATCH("/users/:id/reactivate", h.ReactivateUser)
				admin.POST("/announcements", h.PostAnnouncement)
				admin.POST("/packages", h.CreatePackage)
			}
		}
	}

	return router
}
