package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all field agent configuration
type Config struct {
	Server     ServerConfig
	Firebase   FirebaseConfig
	Cloudinary CloudinaryConfig
	Expo       ExpoConfig
	Tracking   TrackingConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
	WebAPIKey       string
}

type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
}

type ExpoConfig struct {
	ProjectID string
}

type TrackingConfig struct {
	Interval    time.Duration
	MinDistance float64
	GpsdAddr    string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "7070"),
			Host:        getEnv("HOST", "127.0.0.1"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./serviceAccountKey.json"),
			WebAPIKey:       getEnv("FIREBASE_WEB_API_KEY", ""),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
			UploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", ""),
		},
		Expo: ExpoConfig{
			ProjectID: getEnv("EXPO_PROJECT_ID", ""),
		},
		Tracking: TrackingConfig{
			Interval:    parseDuration(getEnv("TRACKING_INTERVAL", "30s"), 30*time.Second),
			MinDistance: parseFloat(getEnv("TRACKING_MIN_DISTANCE_M", "10"), 10),
			GpsdAddr:    getEnv("GPSD_ADDR", "localhost:2947"),
		},
		RateLimit: RateLimitConfig{
			Requests: parseInt(getEnv("RATE_LIMIT_REQUESTS", "100"), 100),
			Window:   parseDuration(getEnv("RATE_LIMIT_WINDOW", "60"), 60*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultValue
}

func parseFloat(s string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	// Handle simple formats like "30s", "5m", "60"
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// If it's just a number, assume seconds
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// ListenAddr is the bind address of the local control API.
func (c *Config) ListenAddr() string {
	return strings.Join([]string{c.Server.Host, c.Server.Port}, ":")
}

func (c *Config) Validate() {
	if c.Firebase.ProjectID == "" {
		log.Fatal("FIREBASE_PROJECT_ID must be set")
	}
	if c.Firebase.WebAPIKey == "" {
		log.Fatal("FIREBASE_WEB_API_KEY must be set")
	}
	if c.Cloudinary.CloudName == "" || c.Cloudinary.UploadPreset == "" {
		log.Fatal("CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET must be set")
	}
	if _, err := os.Stat(c.Firebase.CredentialsPath); os.IsNotExist(err) {
		log.Fatalf("Firebase credentials file not found: %s", c.Firebase.CredentialsPath)
	}
}
