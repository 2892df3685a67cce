package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"estatecare-system/config"
	"estatecare-system/internal/database"
	"estatecare-system/internal/middleware"
	inventoryhandler "estatecare-system/internal/services/inventory/handler"
	issuancehandler "estatecare-system/internal/services/issuance/handler"
	ordershandler "estatecare-system/internal/services/orders/handler"
	residenceshandler "estatecare-system/internal/services/residences/handler"
	usershandler "estatecare-system/internal/services/users/handler"
	"estatecare-system/internal/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.LoadConfig()
	utils.SetSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	if err := database.SeedAdmin(db, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		logger.Fatal("failed to seed admin user", zap.Error(err))
	}

	redisClient, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		// Caching and event publishing degrade gracefully without redis.
		logger.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}

	userHandler := usershandler.NewUserHandler(db, redisClient, logger)
	residenceHandler := residenceshandler.NewResidenceHandler(db, redisClient, logger)
	inventoryHandler := inventoryhandler.NewInventoryHandler(db, redisClient, logger)
	orderHandler := ordershandler.NewOrderHandler(db, redisClient, logger)
	issuanceHandler := issuancehandler.NewIssuanceHandler(db, redisClient, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RateLimit())

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		public.POST("/auth/login", userHandler.Login)
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		adminOnly := middleware.RequireRole("Admin")
		managers := middleware.RequireRole("Admin", "Supervisor")

		users := protected.Group("/users")
		{
			users.POST("", adminOnly, userHandler.Register)
			users.GET("", managers, userHandler.ListUsers)
			users.PUT("/:id", adminOnly, userHandler.UpdateUser)
		}

		residences := protected.Group("/residences")
		{
			residences.GET("/complexes", residenceHandler.ListComplexes)
			residences.GET("/complexes/:id", residenceHandler.GetComplex)
			residences.POST("/complexes", managers, residenceHandler.CreateComplex)
			residences.PUT("/complexes/:id", managers, residenceHandler.UpdateComplex)
			residences.DELETE("/complexes/:id", managers, residenceHandler.DeleteComplex)

			residences.GET("/buildings", residenceHandler.ListBuildings)
			residences.POST("/buildings", managers, residenceHandler.CreateBuilding)
			residences.DELETE("/buildings/:id", managers, residenceHandler.DeleteBuilding)

			residences.GET("/floors", residenceHandler.ListFloors)
			residences.POST("/floors", managers, residenceHandler.CreateFloor)
			residences.DELETE("/floors/:id", managers, residenceHandler.DeleteFloor)

			residences.GET("/rooms", residenceHandler.ListRooms)
			residences.POST("/rooms", managers, residenceHandler.CreateRoom)
			residences.DELETE("/rooms/:id", managers, residenceHandler.DeleteRoom)

			residences.POST("/facilities", managers, residenceHandler.CreateFacility)
			residences.DELETE("/facilities/:id", managers, residenceHandler.DeleteFacility)
		}

		inventory := protected.Group("/inventory")
		{
			inventory.GET("/items", inventoryHandler.ListItems)
			inventory.GET("/items/:id", inventoryHandler.GetItem)
			inventory.POST("/items", managers, inventoryHandler.CreateItem)
			inventory.PUT("/items/:id", managers, inventoryHandler.UpdateItem)

			inventory.GET("/transactions", inventoryHandler.ListTransactions)
			inventory.POST("/adjust", managers, inventoryHandler.AdjustStock)
			inventory.POST("/depreciation", managers, inventoryHandler.Depreciate)
			inventory.GET("/depreciation", inventoryHandler.ListDepreciation)
		}

		orders := protected.Group("/orders")
		{
			orders.POST("", orderHandler.CreateOrder)
			orders.GET("", orderHandler.ListOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.POST("/:id/approve", managers, orderHandler.ApproveOrder)
			orders.POST("/:id/cancel", managers, orderHandler.CancelOrder)
			// Role check lives in the handler: it must run before any
			// store access.
			orders.POST("/:id/receive", orderHandler.ReceiveOrderItems)
		}

		issuance := protected.Group("/issuance")
		{
			issuance.POST("", issuanceHandler.CreateVoucher)
			issuance.GET("", issuanceHandler.ListVouchers)
			issuance.GET("/:id", issuanceHandler.GetVoucher)
		}

		reports := protected.Group("/reports")
		{
			reports.GET("/stock-movement", inventoryHandler.StockMovementReport)
			reports.GET("/consolidated", inventoryHandler.ConsolidatedReport)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	addr := ":" + cfg.Server.Port
	logger.Info("starting server", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
