package handlers

import (
	"tahfidh/internal/app"
	"tahfidh/internal/http/middleware"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, services *app.Services) {
	authHandler := NewAuthHandler(services.AuthService, services.UserRepo)
	sessionHandler := NewSessionHandler(services.SessionService, services.SessionRepo, services.Gateway)
	messageHandler := NewMessageHandler(services.Queue, services.MessageRepo, services.SessionRepo, services.StudentRepo, services.Storage)
	attendanceHandler := NewAttendanceHandler(services.Attendance, services.AttendanceRepo, services.GroupRepo, services.SessionRepo)
	studentHandler := NewStudentHandler(services.StudentRepo, services.GroupRepo)

	// Auth routes (no authentication required)
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.RefreshToken)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(services.AuthService))
	protected.Use(middleware.APIRateLimit(rate.Limit(10), 30))

	profile := protected.Group("/auth")
	profile.GET("/me", authHandler.Me)
	profile.PUT("/change-password", authHandler.ChangePassword)

	sessions := protected.Group("/sessions")
	sessions.GET("", sessionHandler.List)
	sessions.POST("", sessionHandler.Create)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.POST("/:id/start", sessionHandler.Start)
	sessions.GET("/:id/qr", sessionHandler.QR)
	sessions.POST("/:id/logout", sessionHandler.Logout)
	sessions.DELETE("/:id", sessionHandler.Delete)
	sessions.GET("/:id/groups", sessionHandler.Groups)
	sessions.GET("/:id/messages", messageHandler.History)

	messages := protected.Group("/messages")
	messages.POST("/text", messageHandler.SendText)
	messages.POST("/media", messageHandler.SendMedia)
	messages.POST("/broadcast", messageHandler.Broadcast)
	messages.POST("/upload", messageHandler.Upload)
	messages.POST("/:id/retry", messageHandler.Retry)
	messages.POST("/:id/cancel", messageHandler.Cancel)

	attendanceRoutes := protected.Group("/attendance")
	attendanceRoutes.GET("/report", attendanceHandler.Report)
	attendanceRoutes.POST("/mark", attendanceHandler.Mark)
	attendanceRoutes.GET("", attendanceHandler.List)

	students := protected.Group("/students")
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Create)
	students.PUT("/:id", studentHandler.Update)
	students.DELETE("/:id", studentHandler.Delete)

	groups := protected.Group("/groups")
	groups.GET("", studentHandler.ListGroups)
	groups.POST("", studentHandler.CreateGroup)
	groups.PUT("/:id", studentHandler.UpdateGroup)
}
