package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SlotBoardTTL  time.Duration

	AWSRegion        string
	SQSEventQueueURL string
	IoTMQTTEndpoint  string
	GateCommandTopic string

	// Shared secret presented by sensor devices in the x-device-key header.
	SensorDeviceKey string

	// Occupancy debounce tuning.
	OccupiedThreshold  float64
	DebounceWindowSize int
	DebounceMinSamples int

	ReservationLeadTime  time.Duration
	ReservationGraceTime time.Duration
	ExpirySweepInterval  time.Duration

	JWTSecret          string
	JWTExpirationHours time.Duration

	PlateImageDir string
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	boardTTL, _ := strconv.Atoi(getEnv("SLOT_BOARD_TTL_SECONDS", "30"))

	threshold, _ := strconv.ParseFloat(getEnv("OCCUPIED_THRESHOLD", "40"), 64)
	windowSize, _ := strconv.Atoi(getEnv("DEBOUNCE_WINDOW_SIZE", "5"))
	minSamples, _ := strconv.Atoi(getEnv("DEBOUNCE_MIN_SAMPLES", "3"))

	leadMinutes, _ := strconv.Atoi(getEnv("RESERVATION_LEAD_MINUTES", "15"))
	graceMinutes, _ := strconv.Atoi(getEnv("RESERVATION_GRACE_MINUTES", "15"))
	sweepSeconds, _ := strconv.Atoi(getEnv("EXPIRY_SWEEP_SECONDS", "60"))

	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "parkwatch"),
		DBPassword: getEnv("DB_PASSWORD", "parkwatch"),
		DBName:     getEnv("DB_NAME", "parkwatch_db"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		SlotBoardTTL:  time.Duration(boardTTL) * time.Second,

		AWSRegion:        getEnv("AWS_REGION", "ap-south-1"),
		SQSEventQueueURL: getEnv("SQS_EVENT_QUEUE_URL", ""),
		IoTMQTTEndpoint:  getEnv("IOT_MQTT_ENDPOINT", ""),
		GateCommandTopic: getEnv("GATE_COMMAND_TOPIC", "parkwatch/gate/commands"),

		SensorDeviceKey: getEnv("SENSOR_DEVICE_KEY", "DEVKEY12345"),

		OccupiedThreshold:  threshold,
		DebounceWindowSize: windowSize,
		DebounceMinSamples: minSamples,

		ReservationLeadTime:  time.Duration(leadMinutes) * time.Minute,
		ReservationGraceTime: time.Duration(graceMinutes) * time.Minute,
		ExpirySweepInterval:  time.Duration(sweepSeconds) * time.Second,

		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"),
		JWTExpirationHours: time.Duration(jwtExpHours) * time.Hour,

		PlateImageDir: getEnv("PLATE_IMAGE_DIR", "media/plates"),
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable '%s' not set, using default: '%s'", key, fallback)
	return fallback
}
