package app

import (
	"exam_portal_backend/docs"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/middleware"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/util"
	"exam_portal_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	// 会话解析不拦截请求，登录要求由各分组的中间件决定
	api.Use(middleware.SessionAuth(s.auth, &cfg.Session))

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(api, c)

	// 2. 登录用户通用接口
	authGroup := api.Group("")
	authGroup.Use(middleware.RequireAuth())
	{
		authGroup.GET("/results", c.result.ListResults)
		authGroup.GET("/question-breakdown", c.result.QuestionBreakdown)
		authGroup.GET("/generate-certificate", c.result.GenerateCertificate)
		authGroup.GET("/profile-stats", c.user.ProfileStats)
		authGroup.POST("/update-profile", c.user.UpdateProfile)
		authGroup.POST("/change-password", c.user.ChangePassword)
	}

	// 3. 学生接口
	a.registerStudentRoutes(api, c)

	// 4. 管理员相关接口
	a.registerAdminRoutes(api, c)
}

func (a *App) registerPublicRoutes(api *gin.RouterGroup, c *controllers) {
	api.GET("/health", c.health.HealthCheck)
	api.POST("/register", c.auth.Register)
	api.POST("/login", c.auth.Login)
	api.POST("/logout", c.auth.Logout)
	api.GET("/check-session", c.auth.CheckSession)
	api.POST("/check-username", c.auth.CheckUsername)
	api.GET("/verify-certificate", c.result.VerifyCertificate)
}

func (a *App) registerStudentRoutes(api *gin.RouterGroup, c *controllers) {
	student := api.Group("")
	student.Use(middleware.RequireRole(model.Student, util.MsgAccessDenied))
	{
		student.GET("/exam-start", c.attempt.StartExam)
		student.POST("/save-answer", c.attempt.SaveAnswer)
		student.POST("/submit-exam", c.attempt.SubmitExam)
		student.GET("/dashboard-data", c.result.StudentDashboard)
	}
}

func (a *App) registerAdminRoutes(api *gin.RouterGroup, c *controllers) {
	admin := api.Group("")
	admin.Use(middleware.RequireRole(model.Admin, util.MsgInsufficientPerms))
	{
		admin.GET("/admin-dashboard-data", c.result.AdminDashboard)
		admin.GET("/users", c.user.GetUsers)
		admin.POST("/create-user", c.user.CreateUser)
		admin.POST("/delete-user", c.user.DeleteUser)

		admin.GET("/exams", c.exam.ListExams)
		admin.GET("/exam", c.exam.GetExam)
		admin.POST("/create-exam", c.exam.CreateExam)
		admin.POST("/update-exam", c.exam.UpdateExam)
		admin.POST("/delete-exam", c.exam.DeleteExam)
		admin.POST("/abandon-attempt", c.attempt.AbandonAttempt)

		admin.GET("/generate-report", c.result.GenerateReport)
	}
}
