// main.go
// SecureLC Field Agent - line clear request client
// Wires Firebase auth, Firestore, Cloudinary, Expo push and GPS
// tracking behind a loopback control API.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"securelc/auth"
	"securelc/config"
	"securelc/coordinator"
	"securelc/db"
	"securelc/handlers"
	"securelc/location"
	"securelc/media"
	"securelc/middleware"
	"securelc/models"
	"securelc/notify"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️  No .env file found, using system environment variables")
	}

	cfg := config.Load()
	cfg.Validate()

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	log.Infof("🚀 Starting SecureLC field agent")
	log.Infof("📍 Environment: %s", cfg.Server.Environment)
	log.Infof("🔧 Control API: %s", cfg.ListenAddr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cloud services
	store, err := db.NewStore(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath, log)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Firestore: %v", err)
	}
	defer store.Close()

	gateway := auth.NewGateway(auth.DefaultEndpoint, cfg.Firebase.WebAPIKey, log)
	uploader := media.NewUploader(media.DefaultEndpoint, cfg.Cloudinary.CloudName, cfg.Cloudinary.UploadPreset, log)

	// Location tracking
	provider := location.NewGpsdProvider(cfg.Tracking.GpsdAddr, log)
	tracker := location.NewTracker(provider, store, gateway.Current, location.WatchOptions{
		Interval:    cfg.Tracking.Interval,
		MinDistance: cfg.Tracking.MinDistance,
	}, log)

	// Notifications (optional capability; degrades without a project ID)
	var platform notify.Platform = notify.UnsupportedPlatform{}
	if cfg.Expo.ProjectID != "" {
		platform = notify.NewExpoPlatform(notify.DefaultExpoEndpoint, cfg.Expo.ProjectID)
	}
	notifier := notify.NewNotifier(platform, store, store, gateway.Current, log)

	// Lifecycle coordination
	coord := coordinator.New(store, uploader, tracker, gateway, log)
	coord.Run(ctx)

	// Push setup and delivery listener follow the session.
	gateway.OnChange(func(sess *models.Session) {
		if sess == nil {
			return
		}
		go func() {
			notifier.Setup(ctx)
			notifier.OnForeground(ctx, func(ev models.NotificationEvent) {
				log.Infof("🔔 %s: %s", ev.Title, ev.Body)
			})
		}()
	})

	// Surface location ticks in the agent log.
	go func() {
		for sample := range tracker.Ticks() {
			log.Debugw("location tick",
				"request", sample.RequestID,
				"lat", sample.Latitude,
				"lon", sample.Longitude,
				"accuracy", sample.Accuracy,
			)
		}
	}()

	// Handlers
	sessionHandler := handlers.NewSessionHandler(gateway, log)
	requestHandler := handlers.NewRequestHandler(coord, log)
	trackingHandler := handlers.NewTrackingHandler(coord, log)
	log.Infof("✅ Handlers initialized")

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters()

	// Set up router
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)

	mux.HandleFunc("/api/session/signin", sessionHandler.SignIn)
	mux.HandleFunc("/api/session/signup", sessionHandler.SignUp)
	mux.HandleFunc("/api/session/signout", sessionHandler.SignOut)
	mux.HandleFunc("/api/session/reset", sessionHandler.Reset)
	mux.HandleFunc("/api/session", sessionHandler.Current)

	mux.HandleFunc("/api/requests", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			requestHandler.Submit(w, r)
		case http.MethodDelete:
			requestHandler.Delete(w, r)
		default:
			requestHandler.List(w, r)
		}
	})
	mux.HandleFunc("/api/requests/complete", requestHandler.Complete)

	mux.HandleFunc("/api/tracking/start", trackingHandler.Start)
	mux.HandleFunc("/api/tracking/stop", trackingHandler.Stop)
	mux.HandleFunc("/api/tracking/status", trackingHandler.Status)

	handler := middleware.RequestLogger(log)(mux)
	handler = rateLimiter.Middleware()(handler)

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("✅ Control API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Control API failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down agent...")

	if err := tracker.Stop(); err != nil {
		log.Warnf("⚠️  Stop tracking on shutdown: %v", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("❌ Control API forced to shutdown: %v", err)
	}

	log.Info("✅ Agent stopped gracefully")
}

func newLogger(cfg *config.Config) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		zcfg.Level = lvl
	}
	logger, _ := zcfg.Build()
	return logger
}

// Health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d,"version":"1.0.0"}`, time.Now().Unix())
}
