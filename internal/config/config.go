package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Persistence store (PostgreSQL). Empty DSN keeps cameras and schedules in memory.
	DatabaseURL          string
	DatabaseMaxOpenConns int
	DatabaseMaxIdleConns int

	// Capture
	CaptureFPS          int
	CaptureReadTimeout  time.Duration
	CaptureRetryDelay   time.Duration
	CaptureOpenTimeout  time.Duration
	SessionStopTimeout  time.Duration
	DefaultDeviceIndex  int
	ReconnectBackoffMax time.Duration
	ReconnectJitterPct  int

	// Sampling loop
	DetectionEnabled bool
	SamplingInterval time.Duration
	SamplingPoll     time.Duration

	// Detection cycle
	DetectionJitter   float64
	FallbackEnabled   bool
	JPEGQuality       int
	AnnotateTimestamp bool

	// Analyzer
	AIBackend      string // grpc | http
	AIGRPCEndpoint string
	AIHTTPEndpoint string
	AITimeout      time.Duration
	AIRetries      int
	AIDetector     string

	// Artifact store
	StorageBackend string // fs | minio
	ImagesDir      string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// NATS result sink
	NatsEnabled        bool
	NatsURL            string
	NatsSubject        string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration

	// MQTT result sink
	MQTTEnabled     bool
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTQoS         int

	// Redis stream result sink
	RedisEnabled      bool
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisStream       string
	RedisStreamMaxLen int64

	// Swagger Configuration
	SwaggerHost string
	SwaggerPort int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "emotion-worker-1"),
		Port:        getEnvInt("PORT", 5000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DatabaseMaxOpenConns: getEnvInt("DATABASE_MAX_OPEN_CONNS", 10),
		DatabaseMaxIdleConns: getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),

		// Capture
		CaptureFPS:          getEnvInt("CAPTURE_FPS", 30),
		CaptureReadTimeout:  getEnvDuration("CAPTURE_READ_TIMEOUT", 3*time.Second),
		CaptureRetryDelay:   getEnvDuration("CAPTURE_RETRY_DELAY", 1*time.Second),
		CaptureOpenTimeout:  getEnvDuration("CAPTURE_OPEN_TIMEOUT", 10*time.Second),
		SessionStopTimeout:  getEnvDuration("SESSION_STOP_TIMEOUT", 5*time.Second),
		DefaultDeviceIndex:  getEnvInt("DEFAULT_DEVICE_INDEX", 0),
		ReconnectBackoffMax: getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),
		ReconnectJitterPct:  getEnvInt("RECONNECT_JITTER_PCT", 20),

		// Sampling
		DetectionEnabled: getEnvBool("DETECTION_ENABLED", true),
		SamplingInterval: getEnvDuration("SAMPLING_INTERVAL", 1*time.Second),
		SamplingPoll:     getEnvDuration("SAMPLING_POLL", 100*time.Millisecond),

		// Detection
		DetectionJitter:   getEnvFloat("DETECTION_JITTER", 0.05),
		FallbackEnabled:   getEnvBool("FALLBACK_ENABLED", true),
		JPEGQuality:       getEnvInt("JPEG_QUALITY", 90),
		AnnotateTimestamp: getEnvBool("ANNOTATE_TIMESTAMP", true),

		// Analyzer
		AIBackend:      getEnv("AI_BACKEND", "http"),
		AIGRPCEndpoint: getEnv("AI_GRPC_ENDPOINT", "localhost:50052"),
		AIHTTPEndpoint: getEnv("AI_HTTP_ENDPOINT", "http://localhost:5005"),
		AITimeout:      getEnvDuration("AI_TIMEOUT", 10*time.Second),
		AIRetries:      getEnvInt("AI_RETRIES", 2),
		AIDetector:     getEnv("AI_DETECTOR_BACKEND", "opencv"),

		// Artifact store
		StorageBackend: getEnv("STORAGE_BACKEND", "fs"),
		ImagesDir:      getEnv("IMAGES_DIR", "images"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "emotion-artifacts"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsSubject:        getEnv("NATS_SUBJECT", "emotions.results"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),

		// MQTT
		MQTTEnabled:     getEnvBool("MQTT_ENABLED", false),
		MQTTBroker:      getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "emotion-worker"),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "emotions"),
		MQTTQoS:         getEnvInt("MQTT_QOS", 1),

		// Redis
		RedisEnabled:      getEnvBool("REDIS_ENABLED", false),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RedisStream:       getEnv("REDIS_STREAM", "emotions:results"),
		RedisStreamMaxLen: int64(getEnvInt("REDIS_STREAM_MAXLEN", 10000)),

		SwaggerHost: getEnv("SWAGGER_HOST", "localhost"),
		SwaggerPort: getEnvInt("SWAGGER_PORT", 5000),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.CaptureFPS <= 0 {
		return fmt.Errorf("CAPTURE_FPS must be positive, got %d", c.CaptureFPS)
	}
	if c.SamplingInterval <= 0 || c.SamplingPoll <= 0 {
		return fmt.Errorf("SAMPLING_INTERVAL and SAMPLING_POLL must be positive")
	}
	if c.DetectionJitter < 0 || c.DetectionJitter >= 0.5 {
		return fmt.Errorf("DETECTION_JITTER must be in [0, 0.5), got %v", c.DetectionJitter)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in [1, 100], got %d", c.JPEGQuality)
	}
	switch c.AIBackend {
	case "grpc", "http":
	default:
		return fmt.Errorf("unknown AI_BACKEND %q", c.AIBackend)
	}
	switch c.StorageBackend {
	case "fs", "minio":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTTQoS)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}
	if isRunningInDocker() {
		return "nats://nats:4222"
	}
	return "nats://localhost:4222"
}
