package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvStudio/internal/api/middleware"
	"cvStudio/internal/auth"
	"cvStudio/internal/config"
	"cvStudio/internal/database"
	"cvStudio/internal/export"
	"cvStudio/internal/prepcache"
	"cvStudio/internal/render"
	"cvStudio/internal/storage"
)

// Dependencies 汇总路由所需的协作方，由 cmd/api 组装。
type Dependencies struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	Tasks       TaskEnqueuer
	Auth        *auth.AuthService
	Storage     *storage.Client
	Renderer    *render.Renderer
	PDF         PDFRenderer
	Entitlement EntitlementChecker
	Checkout    CheckoutCreator
	Gate        *export.Gate
	Prep        *prepcache.Cache
	Scanner     VirusScanner
	Logger      *slog.Logger
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	docs := database.NewDocumentRepository(deps.DB)
	renderer := &documentRenderer{renderer: deps.Renderer, photos: deps.Storage, pdf: deps.PDF}

	authHandler := NewAuthHandler(
		deps.DB, deps.Auth, deps.Redis, deps.Logger,
		cfg.API.LoginRateLimitPerHour, cfg.API.LoginLockThreshold, cfg.API.LoginLockTTL, cfg.API.CookieDomain,
	)
	cvHandler := &CVHandler{
		docs:     docs,
		ent:      deps.Entitlement,
		prep:     deps.Prep,
		objects:  deps.Storage,
		enqueuer: deps.Tasks,
		render:   renderer,
		logger:   deps.Logger,
	}
	internalHandler := &InternalHandler{docs: docs, render: renderer, logger: deps.Logger}
	templateHandler := &TemplateHandler{db: deps.DB, objects: deps.Storage, logger: deps.Logger}
	checkoutHandler := &CheckoutHandler{docs: docs, checkout: deps.Checkout, logger: deps.Logger}
	prepHandler := &PrepHandler{docs: docs, cache: deps.Prep, logger: deps.Logger}
	assetHandler := &AssetHandler{Storage: deps.Storage, Scanner: deps.Scanner, Logger: deps.Logger, MaxBytes: cfg.API.MaxPhotoBytes}

	editorService := NewEditorService(docs, deps.Entitlement, deps.Gate, deps.Prep, cfg.Editor.AutosaveDelay, cfg.Editor.PageHeightPx, deps.Logger)
	wsHandler := NewWsHandler(deps.Redis, deps.Auth, editorService, deps.Logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.Auth)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)
		v1.GET("/templates", templateHandler.ListTemplates)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/password", authMiddleware, authHandler.ChangePassword)
		}

		cvGroup := v1.Group("/cv")
		cvGroup.Use(authMiddleware)
		{
			cvGroup.GET("", cvHandler.ListDocuments)
			cvGroup.POST("", cvHandler.CreateDocument)
			cvGroup.GET("/:id", cvHandler.GetDocument)
			cvGroup.PUT("/:id", cvHandler.UpdateDocument)
			cvGroup.DELETE("/:id", cvHandler.DeleteDocument)
			cvGroup.GET("/:id/export", cvHandler.ExportDocument)
			cvGroup.POST("/:id/download", cvHandler.DownloadDocument)
			cvGroup.GET("/:id/download-link", cvHandler.GetDownloadLink)
			cvGroup.GET("/:id/preview", cvHandler.PreviewDocument)
		}

		v1.POST("/checkout", authMiddleware, checkoutHandler.CreateCheckout)

		prepGroup := v1.Group("/prep")
		prepGroup.Use(authMiddleware)
		{
			prepGroup.GET("/:id/:lang", prepHandler.GetPrep)
			prepGroup.PUT("/:id/:lang", prepHandler.PutPrep)
			prepGroup.DELETE("", prepHandler.ClearPrep)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
		}

		internalGroup := v1.Group("/internal")
		internalGroup.Use(middleware.InternalSecretMiddleware(cfg.Internal.Secret))
		{
			internalGroup.GET("/cv/:id/export", internalHandler.ExportDocument)
		}
	}
}
