package api

import (
	"parkwatch/internal/api/handler"
	"parkwatch/internal/api/middleware"
	"parkwatch/internal/config"
	"parkwatch/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(
	cfg *config.Config,
	authService *service.AuthService,
	slotService *service.SlotService,
	allocationService *service.AllocationService,
	occupancyService *service.OccupancyService,
	vehicleService *service.VehicleEventService,
	plateService service.PlateExtractor,
	authMw *middleware.AuthMiddleware,
	wsManager *handler.WebSocketManager,
) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, x-device-key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	wsHandler := handler.NewWebSocketHandler(wsManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(authService)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	v1 := r.Group("/api/v1")

	// Device ingestion: shared-secret header instead of user tokens.
	sensorHandler := handler.NewSensorHandler(occupancyService)
	vehicleHandler := handler.NewVehicleHandler(vehicleService, plateService)
	deviceRoutes := v1.Group("")
	deviceRoutes.Use(middleware.DeviceAuth(cfg.SensorDeviceKey))
	{
		deviceRoutes.POST("/sensors/events", sensorHandler.IngestEvent)
		deviceRoutes.POST("/vehicle/entry", vehicleHandler.Entry)
		deviceRoutes.POST("/vehicle/exit", vehicleHandler.Exit)
	}

	// Public availability board.
	slotHandler := handler.NewSlotHandler(slotService)
	v1.GET("/slots", slotHandler.GetBoard)

	authed := v1.Group("")
	authed.Use(authMw.Authenticate())
	{
		slotRoutes := authed.Group("/slots")
		{
			slotRoutes.GET("/:id", slotHandler.GetByID)
			slotRoutes.POST("", authMw.AuthorizeRole("admin"), slotHandler.Create)
			slotRoutes.PUT("/:id", authMw.AuthorizeRole("admin"), slotHandler.Update)
			slotRoutes.DELETE("/:id", authMw.AuthorizeRole("admin"), slotHandler.Delete)
		}

		// Includes inactive slots, admin only.
		authed.GET("/admin/slots", authMw.AuthorizeRole("admin"), slotHandler.GetAll)

		bookingHandler := handler.NewBookingHandler(allocationService)
		bookingRoutes := authed.Group("/bookings")
		{
			bookingRoutes.POST("", bookingHandler.Create)
			bookingRoutes.GET("", bookingHandler.ListMine)
			bookingRoutes.GET("/:id", bookingHandler.GetByID)
			bookingRoutes.POST("/:id/cancel", bookingHandler.Cancel)
		}

		vehicleRoutes := authed.Group("/vehicle")
		vehicleRoutes.Use(authMw.AuthorizeRole("admin", "operator"))
		{
			vehicleRoutes.GET("/logs", vehicleHandler.RecentLogs)
		}

		ocrRoutes := authed.Group("/ocr")
		ocrRoutes.Use(authMw.AuthorizeRole("admin", "operator"))
		{
			ocrRoutes.POST("/plate", vehicleHandler.ExtractPlate)
		}
	}

	return r
}
