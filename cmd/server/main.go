package main

import (
	"log"
	"time"

	"churchcoin-backend/internal/config"
	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	db := config.InitDB()

	db.AutoMigrate(
		&models.Church{},
		&models.Fund{},
		&models.Donor{},
		&models.Category{},
		&models.CategoryKeyword{},
		&models.AIFeedback{},
		&models.ImportBatch{},
		&models.ImportRow{},
		&models.Transaction{},
		&models.ReconciliationSession{},
		&models.ReconciliationMatch{},
		&models.AuditLog{},
	)

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Church-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db)

	r.Run(config.Port())
}
