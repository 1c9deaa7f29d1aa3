package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/metrics"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Grading *handler.GradingHandler
	Exam    *handler.ExamHandler
	Monitor *handler.MonitorHandler
	Setting *handler.SettingHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	rateLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Device-Fingerprint"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	// ─── 1. Student Group (JWT + per-student rate limit) ───────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		rateLimiter.Middleware(),
	)
	{
		studentAPI.GET("/exams/:exam_id/policy", handlers.Attempt.GetStartPolicy)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)

		studentAPI.GET("/attempts/:id", handlers.Attempt.GetAttempt)
		studentAPI.GET("/attempts/:id/paper", handlers.Attempt.GetPaper)
		studentAPI.PUT("/attempts/:id/answers/:question_id", handlers.Attempt.SaveAnswer)
		studentAPI.POST("/attempts/:id/security-events", handlers.Attempt.RecordSecurityEvent)
		studentAPI.POST("/attempts/:id/heartbeat", handlers.Attempt.Heartbeat)
		studentAPI.POST("/attempts/:id/submit", handlers.Attempt.Submit)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		perm := func(p model.Permission) gin.HandlerFunc { return middleware.RequirePermission(p.String()) }

		// Exams
		adminAPI.POST("/exams", perm(model.PermissionExamsWrite), handlers.Exam.CreateExam)
		adminAPI.GET("/exams/:id", perm(model.PermissionExamsRead), handlers.Exam.GetExam)
		adminAPI.POST("/exams/:id/questions", perm(model.PermissionExamsWrite), handlers.Exam.AddQuestion)
		adminAPI.PUT("/exams/:id/questions/:question_id", perm(model.PermissionExamsWrite), handlers.Exam.UpdateQuestion)
		adminAPI.GET("/exams/:id/targets", perm(model.PermissionExamsRead), handlers.Exam.GetTargetRules)
		adminAPI.POST("/exams/:id/targets", perm(model.PermissionExamsWrite), handlers.Exam.AddTargetRule)
		adminAPI.POST("/exams/:id/publish", perm(model.PermissionExamsPublish), handlers.Exam.PublishExam)
		adminAPI.POST("/exams/:id/archive", perm(model.PermissionExamsPublish), handlers.Exam.ArchiveExam)
		adminAPI.POST("/exams/:id/refresh-cache", perm(model.PermissionExamsPublish), handlers.Exam.RefreshCache)
		adminAPI.GET("/exams/:id/statistics", perm(model.PermissionExamsRead), handlers.Grading.GetStatistics)
		adminAPI.GET("/exams/:id/monitor", perm(model.PermissionAttemptsMonitor), handlers.Monitor.MonitorExamSSE)

		// Attempts
		adminAPI.GET("/attempts/:id", middleware.RequireAnyPermission(
			model.PermissionAttemptsGrade.String(),
			model.PermissionAttemptsMonitor.String(),
		), handlers.Grading.GetAttempt)
		adminAPI.GET("/attempts/:id/security-events", perm(model.PermissionAttemptsMonitor), handlers.Grading.ListSecurityEvents)
		adminAPI.PUT("/attempts/:id/answers/:answer_id/grade", perm(model.PermissionAttemptsGrade), handlers.Grading.GradeAnswer)
		adminAPI.POST("/attempts/:id/terminate", perm(model.PermissionAttemptsTerminate), handlers.Grading.TerminateAttempt)
		adminAPI.POST("/attempts/sweep", perm(model.PermissionAttemptsTerminate), handlers.Grading.Sweep)

		// Settings
		adminAPI.GET("/settings", perm(model.PermissionSettingsRead), handlers.Setting.GetAllSettings)
		adminAPI.PUT("/settings/grade-scale", perm(model.PermissionSettingsWrite), handlers.Setting.UpdateGradeScale)
	}

	return router
}
