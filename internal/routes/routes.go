package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "churchcoin-backend/internal/handlers"
	"churchcoin-backend/internal/repository"
	"churchcoin-backend/internal/services/approval"
	"churchcoin-backend/internal/services/detect"
	"churchcoin-backend/internal/services/imports"
	"churchcoin-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB) {
	txRepo := repository.NewTransactionRepository(db)
	catRepo := repository.NewCategoryRepository(db)
	donorRepo := repository.NewDonorRepository(db)
	churchRepo := repository.NewChurchRepository(db)

	detector := detect.NewDetector(db, txRepo, catRepo, donorRepo, churchRepo, detect.NewGeminiProvider(), detect.DefaultConfig())
	importsSvc := imports.NewService(db)
	approvalSvc := approval.NewService(db, churchRepo)
	reconSvc := reconciliation.NewService(db, txRepo, reconciliation.DefaultConfig())

	importHandler := handler.NewImportHandler(importsSvc, approvalSvc, detector)
	reconHandler := handler.NewReconciliationHandler(reconSvc)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Statement import routes
	imp := api.Group("/imports")
	imp.POST("/upload", importHandler.Upload)
	imp.POST("", importHandler.CreateImport)
	imp.GET("/:id/rows", importHandler.GetRows)
	imp.POST("/:id/annotate", importHandler.Annotate)
	imp.POST("/:id/approve", importHandler.ApproveRows)
	imp.POST("/:id/auto-approve", importHandler.AutoApproveRows)
	imp.POST("/rows/skip", importHandler.SkipRows)
	imp.DELETE("/:id", importHandler.DeleteImport)

	// Reconciliation session routes
	recon := api.Group("/reconciliation/sessions")
	recon.POST("", reconHandler.StartSession)
	recon.GET("", reconHandler.ListSessions)
	recon.GET("/:id/suggestions", reconHandler.SuggestMatches)
	recon.POST("/:id/matches", reconHandler.ConfirmMatch)
	recon.GET("/:id/variance", reconHandler.GetVarianceReport)
	recon.PUT("/:id/progress", reconHandler.UpdateProgress)
	recon.POST("/:id/close", reconHandler.CloseSession)
}
