// Package router assembles the HTTP routes of the API.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Creecly/cleaninvest/internal/handlers"
	"github.com/Creecly/cleaninvest/internal/middleware"
	"github.com/Creecly/cleaninvest/internal/services"
)

// Deps holds everything the routes need.
type Deps struct {
	DB        handlers.DBChecker
	Users     services.UserServicer
	Companies services.CompanyServicer
	Ledger    services.LedgerServicer
	Chats     services.ChatServicer
	Admin     services.AdminServicer
	Audit     services.AuditServicer

	// UploadDir is served read-only under /uploads.
	UploadDir            string
	OpsAPIKey            string
	SlowRequestThreshold time.Duration
	EnableSwagger        bool
}

// New builds the gin engine with middleware and all API routes.
func New(d Deps) *gin.Engine {
	authHandler := handlers.NewAuthHandler(d.Users)
	profileHandler := handlers.NewProfileHandler(d.Users, d.Audit)
	companyHandler := handlers.NewCompanyHandler(d.Companies)
	investmentHandler := handlers.NewInvestmentHandler(d.Ledger)
	supportHandler := handlers.NewSupportHandler(d.Chats)
	adminHandler := handlers.NewAdminHandler(d.Admin)
	opsHandler := handlers.NewOpsHandler(d.DB)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging(d.SlowRequestThreshold))
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	if d.EnableSwagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if d.UploadDir != "" {
		router.Static("/uploads", d.UploadDir)
	}

	router.GET("/api/health", opsHandler.Health)

	ops := router.Group("/api/ops")
	ops.Use(middleware.OpsAuthMiddleware(d.OpsAPIKey))
	ops.GET("/db", opsHandler.DBStats)

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.POST("/auth/logout", authHandler.Logout)

	protected.GET("/profile", profileHandler.GetProfile)
	protected.PUT("/profile", profileHandler.UpdateProfile)
	protected.PUT("/profile/avatar", profileHandler.SetAvatar)

	protected.GET("/companies", companyHandler.ListCompanies)
	protected.GET("/companies/:id", companyHandler.GetCompany)

	investments := protected.Group("/investments")
	investments.GET("", investmentHandler.ListInvestments)
	investments.POST("/buy", investmentHandler.Buy)
	investments.POST("/sell", investmentHandler.Sell)
	investments.GET("/history", investmentHandler.History)

	support := protected.Group("/support")
	support.GET("/unread", supportHandler.UnreadCount)

	chats := support.Group("/chats")
	chats.POST("", supportHandler.CreateChat)
	chats.GET("", supportHandler.ListChats)
	chats.GET("/pending", supportHandler.ListPending)
	chats.GET("/active", supportHandler.ListActive)
	chats.GET("/closed", supportHandler.ListClosed)
	chats.GET("/:id", supportHandler.GetChat)
	chats.GET("/:id/messages", supportHandler.ListMessages)
	chats.POST("/:id/messages", supportHandler.SendMessage)
	chats.POST("/:id/join", supportHandler.Join)
	chats.POST("/:id/leave", supportHandler.Leave)
	chats.POST("/:id/close", supportHandler.Close)
	chats.POST("/:id/balance", supportHandler.GrantBalance)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin(d.Users))
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/users/:id", adminHandler.GetUser)
	admin.POST("/balance", adminHandler.AdjustBalance)
	admin.GET("/stats", adminHandler.Stats)
	admin.POST("/emails", adminHandler.SendBulkEmail)

	owner := admin.Group("/admins")
	owner.Use(middleware.RequireOwner(d.Users))
	owner.POST("", adminHandler.AssignAdmin)
	owner.DELETE("/:nickname", adminHandler.RemoveAdmin)

	return router
}
