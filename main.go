package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"parkwatch/internal/api"
	"parkwatch/internal/api/handler"
	"parkwatch/internal/api/middleware"
	"parkwatch/internal/cache"
	"parkwatch/internal/config"
	"parkwatch/internal/iot"
	"parkwatch/internal/repository/postgresql"
	"parkwatch/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func main() {
	// 1. Load configuration
	cfg := config.Load()
	log.Println("Configuration loaded.")

	// 2. Database connection
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connection established.")

	// 3. Redis cache
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()

	// 4. AWS SDK config and clients
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(context.TODO(), awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Could not load AWS SDK config: %v", err)
	}
	log.Println("AWS SDK config loaded for region:", cfg.AWSRegion)

	sqsClient := sqs.NewFromConfig(awsSDKCfg)
	iotDataPlaneClient := iotdataplane.NewFromConfig(awsSDKCfg, func(o *iotdataplane.Options) {
		if cfg.IoTMQTTEndpoint != "" {
			endpointWithSchema := cfg.IoTMQTTEndpoint
			if !strings.HasPrefix(endpointWithSchema, "https://") && !strings.HasPrefix(endpointWithSchema, "http://") {
				endpointWithSchema = "https://" + endpointWithSchema
			}
			o.BaseEndpoint = aws.String(endpointWithSchema)
		}
	})
	rekognitionClient := rekognition.NewFromConfig(awsSDKCfg)

	// 5. Repositories
	userRepo := postgresql.NewPgUserRepository(db)
	slotRepo := postgresql.NewPgSlotRepository(db)
	slotStatusRepo := postgresql.NewPgSlotStatusRepository(db)
	bookingRepo := postgresql.NewPgBookingRepository(db)
	sensorSampleRepo := postgresql.NewPgSensorSampleRepository(db)
	vehicleLogRepo := postgresql.NewPgVehicleLogRepository(db)

	// 6. WebSocket manager
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()
	log.Println("WebSocket manager started.")

	// 7. Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpirationHours)
	reconciler := service.NewReconcilerService(slotRepo, slotStatusRepo, redisCache, webSocketManager)
	slotService := service.NewSlotService(slotRepo, redisCache)
	occupancyService := service.NewOccupancyService(slotRepo, sensorSampleRepo, reconciler, cfg)
	allocationService := service.NewAllocationService(bookingRepo, slotStatusRepo, reconciler, cfg)
	plateService := service.NewPlateService(rekognitionClient)
	gateService := service.NewGateService(iotDataPlaneClient, cfg)
	vehicleService := service.NewVehicleEventService(
		bookingRepo, vehicleLogRepo, slotRepo, reconciler, plateService, gateService, cfg.PlateImageDir)
	deviceEventService := service.NewDeviceEventService(occupancyService, vehicleService, cfg.SensorDeviceKey)

	// 8. Auth middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)

	// 9. SQS consumer
	var wg sync.WaitGroup
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())

	if cfg.SQSEventQueueURL == "" {
		log.Println("WARNING: SQS_EVENT_QUEUE_URL is not configured. SQS consumer will not run.")
	} else {
		sqsConsumer := iot.NewSQSConsumer(sqsClient, cfg, deviceEventService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sqsConsumer.Start(consumerCtx)
			log.Println("SQS consumer stopped.")
		}()
	}

	// 10. Reservation expiry sweep
	go startExpirySweepJob(consumerCtx, allocationService, cfg.ExpirySweepInterval)

	// 11. HTTP server
	router := api.SetupRouter(cfg, authService, slotService, allocationService,
		occupancyService, vehicleService, plateService, authMiddleware, webSocketManager)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancelConsumer()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shut down: %v", err)
	}

	if cfg.SQSEventQueueURL != "" {
		log.Println("Waiting for SQS consumer to stop (up to 5 seconds)...")
		c := make(chan struct{})
		go func() {
			defer close(c)
			wg.Wait()
		}()
		select {
		case <-c:
			log.Println("SQS consumer stopped cleanly.")
		case <-time.After(5 * time.Second):
			log.Println("SQS consumer did not stop within the grace period.")
		}
	}

	log.Println("Server stopped.")
}

// startExpirySweepJob periodically cancels reservations whose window lapsed
// without the vehicle arriving.
func startExpirySweepJob(ctx context.Context, allocationService *service.AllocationService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry sweep: stopping.")
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := allocationService.ExpireOverdueReservations(sweepCtx); err != nil {
				log.Printf("Expiry sweep failed: %v", err)
			}
			cancel()
		}
	}
}
