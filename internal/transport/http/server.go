package http

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"sysdesign-ai/internal/ai"
	appsvc "sysdesign-ai/internal/app"
	"sysdesign-ai/internal/bootstrap"
	"sysdesign-ai/internal/cache"
	rabbitmqClient "sysdesign-ai/internal/platform/rabbitmq"
	"sysdesign-ai/internal/repository"
	"sysdesign-ai/internal/transport/http/handler"
	"sysdesign-ai/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery())

	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, dependencyChecks(app)...)
	router.StaticFile("/", cfg.App.WebRoot+"/index.html")
	router.GET("/healthz", healthHandler.Check)

	sessionStore := cache.NewSessionStore(app.Redis, time.Duration(cfg.Redis.SessionTTLSeconds)*time.Second)
	predictor := ai.NewPredictionClient(time.Duration(cfg.Prediction.TimeoutSeconds)*time.Second, app.Logger)
	publisher := rabbitmqClient.NewExportPublisher(app.MQConn, cfg.RabbitMQ.ExportQueue)
	exportRepo := repository.NewPlanExportRepository(app.MySQL)

	planService := appsvc.NewPlanService(
		sessionStore,
		predictor,
		publisher,
		appsvc.Endpoints{
			Components:          cfg.Prediction.ComponentsURL,
			Requirements:        cfg.Prediction.RequirementsURL,
			ComponentDiagram:    cfg.Prediction.ComponentDiagramURL,
			FunctionDiagram:     cfg.Prediction.FunctionDiagramURL,
			FMEA:                cfg.Prediction.FMEAURL,
			DVPR:                cfg.Prediction.DVPRURL,
			ComponentDiagramKey: cfg.Prediction.ComponentDiagramKey,
			FunctionDiagramKey:  cfg.Prediction.FunctionDiagramKey,
		},
		cfg.Export.FilePrefix,
		app.Logger,
	)
	planHandler := handler.NewPlanHandler(
		planService,
		cfg.Auth.SessionSecret,
		time.Duration(cfg.Auth.SessionExpireMinute)*time.Minute,
		cfg.Export.MaxBriefChars,
		int64(cfg.Export.MaxBriefBytes),
	)
	historyHandler := handler.NewExportHistoryHandler(exportRepo)

	v1 := router.Group("/api/v1")
	v1.POST("/sessions", planHandler.StartSession)
	v1.GET("/exports", historyHandler.ListRecent)

	sessionGroup := v1.Group("/session")
	sessionGroup.Use(middleware.AuthSession(cfg.Auth.SessionSecret))
	sessionGroup.GET("", planHandler.GetSession)
	sessionGroup.DELETE("", planHandler.EndSession)
	sessionGroup.POST("/brief", planHandler.UploadBrief)
	sessionGroup.POST("/components", planHandler.Generate)
	sessionGroup.POST("/requirements", planHandler.DeriveRequirements)
	sessionGroup.POST("/component-diagram", planHandler.DrawComponentDiagram)
	sessionGroup.POST("/function-diagram", planHandler.DrawFunctionDiagram)
	sessionGroup.POST("/fmea", planHandler.AnalyzeFMEA)
	sessionGroup.POST("/dvpr", planHandler.PlanDVPR)
	sessionGroup.GET("/export", planHandler.Export)
	sessionGroup.GET("/exports", historyHandler.ListSessionExports)

	return router
}

func dependencyChecks(app *bootstrap.App) []handler.DependencyCheck {
	return []handler.DependencyCheck{
		{Name: "mysql", Ping: func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		{Name: "redis", Ping: func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}},
		{Name: "rabbitmq", Ping: func(ctx context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}},
	}
}
