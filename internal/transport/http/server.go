package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appsvc "docchat/internal/app"
	"docchat/internal/bootstrap"
	"docchat/internal/logging"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

// RouterDeps is everything the HTTP layer needs from the application.
type RouterDeps struct {
	GinMode       string
	GatewaySecret string
	Logger        *slog.Logger
	Registry      *prometheus.Registry
	Events        *logging.EventLog

	Auth      *appsvc.AuthService
	Documents *appsvc.DocumentService
	Ingest    *appsvc.IngestService
	Chat      *appsvc.ChatService
	Health    *handler.HealthHandler
}

func NewRouter(app *bootstrap.App) (*gin.Engine, error) {
	probes := make([]handler.Probe, 0, len(app.Probes))
	for _, p := range app.Probes {
		probes = append(probes, handler.Probe{Name: p.Name, Check: p.Check})
	}

	return Build(RouterDeps{
		GinMode:       app.Config.App.GinMode,
		GatewaySecret: app.Config.Auth.GatewaySecret,
		Logger:        logging.NewModuleLogger("transport", "http"),
		Registry:      app.Registry,
		Events:        app.Events,
		Auth:          app.Auth,
		Documents:     app.Documents,
		Ingest:        app.Ingest,
		Chat:          app.Chat,
		Health:        handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, probes...),
	})
}

func Build(deps RouterDeps) (*gin.Engine, error) {
	if deps.GinMode != "" {
		gin.SetMode(deps.GinMode)
	}
	metrics, err := middleware.NewMetrics(deps.Registry)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.MaxMultipartMemory = handler.MaxUploadMemory
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(deps.Logger),
		metrics.Handler(),
		middleware.GatewayGate(deps.GatewaySecret, "/healthz", "/metrics"),
	)

	router.GET("/healthz", deps.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	adminHandler := handler.NewAdminHandler(deps.Auth, deps.Documents, deps.Ingest, deps.Chat, deps.Events)
	userHandler := handler.NewUserHandler(deps.Auth, deps.Documents, deps.Ingest, deps.Chat, deps.Events)
	chatHandler := handler.NewChatHandler(deps.Chat, deps.Events)

	router.POST("/user/login", userHandler.Login)

	admin := router.Group("/admin")
	admin.Use(middleware.AdminBasicAuth(deps.Auth))
	{
		admin.GET("/auth/check", adminHandler.AuthCheck)

		admin.POST("/users", adminHandler.CreateUser)
		admin.GET("/users", adminHandler.ListUsers)
		admin.DELETE("/users/:username", adminHandler.DeleteUser)
		admin.POST("/users/:username/reset_password", adminHandler.ResetPassword)

		admin.POST("/pdf/upload", adminHandler.UploadPDF)
		admin.GET("/pdf", adminHandler.ListPDFs)
		admin.POST("/pdf/delete", adminHandler.DeletePDFs)
		admin.POST("/pdf/delete_public", adminHandler.DeletePublicPDFs)

		admin.POST("/vectordb/ingest/all", adminHandler.IngestAll)
		admin.POST("/vectordb/ingest/one/:filename", adminHandler.IngestOne)
		admin.POST("/vectordb/ingest/public/:filename", adminHandler.IngestPublic)
		admin.POST("/vectordb/ingest/private/:filename", adminHandler.IngestPrivate)
		admin.GET("/vectordb/pdf", adminHandler.ListVectorSources)
		admin.DELETE("/vectordb/pdf", adminHandler.DeleteAllVectors)
		admin.DELETE("/vectordb/pdf/:filename", adminHandler.DeleteVectorsBySource)
		admin.DELETE("/vectordb/pdf/user/:owner", adminHandler.DeleteVectorsByTenant)
		admin.GET("/vectordb/ingested", adminHandler.ListIngested)
		admin.DELETE("/vectordb/memory", adminHandler.ClearAllMemory)
		admin.DELETE("/vectordb/memory/:user_id", adminHandler.ClearMemory)

		admin.GET("/chat/history/:user_id", adminHandler.History)
	}

	user := router.Group("/user")
	user.Use(middleware.UserAuth(deps.Auth))
	{
		user.GET("/auth/check", userHandler.AuthCheck)

		user.POST("/pdf/upload", userHandler.UploadPDF)
		user.GET("/pdf", userHandler.ListPDFs)
		user.GET("/pdf/:id/download", userHandler.DownloadPDF)
		user.POST("/pdf/delete", userHandler.DeletePDFs)
		user.GET("/ingested_pdfs", userHandler.ListIngested)

		user.POST("/vectordb/ingest/all", userHandler.IngestAll)
		user.POST("/vectordb/ingest/one/:filename", userHandler.IngestOne)
		user.GET("/vectordb/pdf", userHandler.ListVectorSources)
		user.DELETE("/vectordb/pdf/one/:filename", userHandler.DeleteOwnVectors)
		user.DELETE("/vectordb/pdf/all", userHandler.DeleteAllOwnVectors)
		user.DELETE("/vectordb/memory", userHandler.ClearMemory)

		user.GET("/chat/history", userHandler.History)
		user.POST("/chat", chatHandler.Chat)
		user.GET("/chat/sessions", chatHandler.ListSessions)
		user.GET("/chat/sessions/:id/messages", chatHandler.ListMessages)
		user.DELETE("/chat/sessions/:id", chatHandler.DeleteSession)
	}

	return router, nil
}
