package router

import (
	"time"

	"github.com/brentcodes/clamped/internal/handlers"
	"github.com/brentcodes/clamped/internal/middleware"
	"github.com/brentcodes/clamped/internal/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter() *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     types.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/:project_id", middleware.AuthMiddleware(), handlers.WebSocket)

		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register)
			auth.POST("/login", handlers.Login)
			auth.POST("/logout", handlers.Logout)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
			auth.PATCH("/me", middleware.AuthMiddleware(), handlers.UpdateUser)
		}

		api.GET("/cve/:cve_id", middleware.AuthMiddleware(), handlers.LookupCve)
		api.GET("/calendar", middleware.AuthMiddleware(), handlers.Calendar)

		notifications := api.Group("/notifications", middleware.AuthMiddleware())
		{
			notifications.GET("", handlers.ListNotifications)
			notifications.GET("/unread-count", handlers.UnreadNotificationCount)
			notifications.PATCH("/:notification_id/read", handlers.MarkNotificationRead)
			notifications.PATCH("/read-all", handlers.MarkAllNotificationsRead)
		}

		admin := api.Group("/admin", middleware.AuthMiddleware())
		{
			admin.GET("/users", handlers.AdminListUsers)
			admin.POST("/users", handlers.AdminCreateUser)
			admin.PATCH("/users/:user_id", handlers.AdminUpdateUser)
			admin.DELETE("/users/:user_id", handlers.AdminDeleteUser)
			admin.GET("/projects", handlers.AdminListProjects)
			admin.GET("/vulnerabilities", handlers.AdminListVulnerabilities)
			admin.GET("/vulnerabilities/overdue", handlers.AdminOverdueVulnerabilities)
		}

		projects := api.Group("/projects", middleware.AuthMiddleware())
		{
			projects.POST("", handlers.CreateProject)
			projects.GET("", handlers.ListProjects)
			projects.GET("/:project_id", handlers.GetProject)
			projects.PATCH("/:project_id", handlers.UpdateProject)
			projects.DELETE("/:project_id", handlers.DeleteProject)

			// Membership management
			projects.GET("/:project_id/members", handlers.ListMembers)
			projects.POST("/:project_id/members", handlers.AddMember)
			projects.PATCH("/:project_id/members/:user_id", handlers.ChangeMemberRole)
			projects.POST("/:project_id/members/:user_id/validate-remove", handlers.ValidateRemoveMember)
			projects.DELETE("/:project_id/members/:user_id", handlers.RemoveMember)
			projects.POST("/:project_id/leave/validate", handlers.ValidateSelfRemove)
			projects.DELETE("/:project_id/leave", handlers.SelfRemove)

			// Vulnerability workflow
			projects.POST("/:project_id/vulnerabilities", handlers.ReportVulnerability)
			projects.GET("/:project_id/vulnerabilities", handlers.ListVulnerabilities)
			projects.GET("/:project_id/vulnerabilities/:vuln_id", handlers.GetVulnerability)
			projects.PATCH("/:project_id/vulnerabilities/:vuln_id", handlers.UpdateVulnerability)
			projects.DELETE("/:project_id/vulnerabilities/:vuln_id", handlers.DeleteVulnerability)
			projects.POST("/:project_id/vulnerabilities/:vuln_id/assign", handlers.AssignUser)
			projects.POST("/:project_id/vulnerabilities/:vuln_id/self-assign", handlers.SelfAssign)
			projects.DELETE("/:project_id/vulnerabilities/:vuln_id/assign/:user_id", handlers.UnassignUser)
			projects.POST("/:project_id/vulnerabilities/:vuln_id/verify", handlers.VerifyVulnerability)

			// Project chat
			projects.GET("/:project_id/messages", handlers.ListMessages)
			projects.POST("/:project_id/messages", handlers.SendMessage)
		}
	}

	return r
}
