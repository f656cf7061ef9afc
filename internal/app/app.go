package app

import (
	"context"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/controller"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/service"
	"exam_portal_backend/pkg/configwatcher"
	"exam_portal_backend/pkg/database"
	"exam_portal_backend/pkg/logger"
	"exam_portal_backend/pkg/monitoring"
	"exam_portal_backend/pkg/security"
	"exam_portal_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user          *repository.UserRepository
	exam          *repository.ExamRepository
	attempt       *repository.AttemptRepository
	result        *repository.ResultRepository
	session       *repository.SessionRepository
	loginAttempts *repository.LoginAttemptRepository
}

type services struct {
	auth        *service.AuthService
	storage     *service.StorageService
	user        *service.UserService
	exam        *service.ExamService
	attempt     *service.AttemptService
	result      *service.ResultService
	report      *service.ReportService
	certificate *service.CertificateService
}

type controllers struct {
	auth    *controller.AuthController
	user    *controller.UserController
	exam    *controller.ExamController
	attempt *controller.AttemptController
	result  *controller.ResultController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:          repository.NewUserRepository(db),
		exam:          repository.NewExamRepository(db),
		attempt:       repository.NewAttemptRepository(db),
		result:        repository.NewResultRepository(db),
		session:       repository.NewSessionRepository(rdb),
		loginAttempts: repository.NewLoginAttemptRepository(rdb),
	}
}

func deadlinePolicy(cfg *config.Config) service.DeadlinePolicy {
	return service.DeadlinePolicy{Enforce: cfg.Exam.EnforceDeadline, Grace: cfg.Exam.DeadlineGrace}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) (*services, error) {
	strategy, err := service.NewShortAnswerStrategy(cfg.Grading.ShortAnswer)
	if err != nil {
		return nil, err
	}

	s := &services{}
	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, repos.session, repos.loginAttempts, cfg)
	s.user = service.NewUserService(repos.user, s.storage)
	s.exam = service.NewExamService(repos.exam)
	s.attempt = service.NewAttemptService(repos.exam, repos.attempt, service.NewGrader(strategy), deadlinePolicy(cfg))
	s.result = service.NewResultService(repos.result, repos.exam, repos.attempt, repos.user)
	s.report = service.NewReportService(repos.result, repos.user, repos.exam)
	s.certificate = service.NewCertificateService(s.result, cfg)
	return s, nil
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		auth:    controller.NewAuthController(s.auth, &a.Config.Session),
		user:    controller.NewUserController(s.user, s.result),
		exam:    controller.NewExamController(s.exam),
		attempt: controller.NewAttemptController(s.attempt),
		result:  controller.NewResultController(s.result, s.report, s.certificate),
		health:  controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(gin.Recovery())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func rateWindow(cfg *config.Config) time.Duration {
	return time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
}

// New 使用已建立的数据库与 Redis 连接组装路由，测试直接调用
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	app := &App{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		limiter: security.NewLimiter(cfg.RateLimit.MaxRequests, rateWindow(cfg)),
	}

	repos := app.initRepositories(db, rdb)
	svcs, err := app.initServices(repos, cfg)
	if err != nil {
		return nil, err
	}
	app.services = svcs
	controllers := app.initControllers(svcs)

	monitoring.Init()

	router := gin.New()
	app.Router = router
	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, svcs, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	// 热加载只调整截止时间策略与限流参数
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		svcs.attempt.SetDeadlinePolicy(deadlinePolicy(newCfg))
		app.limiter.Update(newCfg.RateLimit.MaxRequests, rateWindow(newCfg))
	})

	return app, nil
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式下仅在显式要求或表缺失时迁移
	if !cfg.IsRelease() || cfg.ForceMigrate || database.NeedsMigration(db) {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app, err := New(cfg, db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to build application", zap.Error(err))
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-portal", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	if cfg.SeedFile != "" {
		n, err := app.services.exam.ImportFile(context.Background(), cfg.SeedFile, 0)
		if err != nil {
			logger.Log.Fatal("Failed to import exams", zap.String("file", cfg.SeedFile), zap.Error(err))
		}
		logger.Log.Info("Exams imported", zap.String("file", cfg.SeedFile), zap.Int("count", n))
	}

	return app
}

func (a *App) watchConfig(ctx context.Context) {
	configFile := filepath.Join("configs", "config.yaml")
	err := configwatcher.WatchConfig(ctx, configFile, func(cfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(cfg)
		}
	})
	if err != nil {
		logger.Log.Warn("Config watcher stopped", zap.Error(err))
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	go a.watchConfig(watchCtx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	stopWatch()
	a.limiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
