package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geoattend/internal/attendance"
	"geoattend/internal/audit"
	"geoattend/internal/auth"
	"geoattend/internal/config"
	"geoattend/internal/directory"
	"geoattend/internal/handler"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/idcard"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
	"geoattend/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	overrides, err := cfg.RadiusOverrides()
	if err != nil {
		return err
	}
	fence := attendance.NewGeofence(attendance.RadiusPolicy{
		Default:   cfg.Geofence.DefaultRadiusM,
		Overrides: overrides,
	})

	m := metrics.New(prometheus.DefaultRegisterer)
	checks := map[string]func(context.Context) bool{}

	var (
		attStore attendance.Store
		dirStore directory.Store
		events   handler.EventLister
		sink     audit.Sink
	)
	switch cfg.StoreBackend {
	case "memory":
		dir := directory.NewMemoryDirectory()
		if cfg.SeedFile != "" {
			seed, err := directory.LoadSeed(cfg.SeedFile)
			if err != nil {
				return err
			}
			if err := dir.SeedColleges(ctx, seed); err != nil {
				return err
			}
			log.Printf("seeded %d colleges from %s", len(seed.Colleges), cfg.SeedFile)
		}
		eventLog := attendance.NewMemoryEventLog()
		attStore, dirStore, events, sink = attendance.NewMemoryStore(), dir, eventLog, eventLog
		log.Println("using in-memory store; data is lost on restart")
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect failed: %w", err)
		}
		defer db.Close()
		repo := attendance.NewRepository(db.Client)
		attStore, dirStore, events, sink = repo, directory.NewRepository(db.Client), repo, repo
		checks["db"] = db.Healthy
	}

	var redisClient *store.Redis
	if cfg.QueueBackend != "memory" || cfg.RateLimitStore == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		// an in-process queue is only visible to an in-process recorder
		go func() {
			if err := audit.NewRecorder(q, sink, m).Run(ctx); err != nil {
				log.Printf("audit recorder stopped: %v", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitStore == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	cards, err := idcard.New(ctx, cfg.IDCard.Storage, idcard.Options{
		UploadRoot:          cfg.IDCard.UploadRoot,
		CloudinaryCloudName: cfg.IDCard.CloudinaryCloudName,
		CloudinaryAPIKey:    cfg.IDCard.CloudinaryAPIKey,
		CloudinaryAPISecret: cfg.IDCard.CloudinaryAPISecret,
		S3Bucket:            cfg.IDCard.S3Bucket,
	})
	if err != nil {
		return err
	}
	log.Printf("id cards stored in %s backend", cfg.IDCard.Storage)

	h := handler.New(handler.Deps{
		Attendance:   attendance.NewService(attStore, dirStore, fence, attendance.WithLocation(loc)),
		Directory:    directory.NewService(dirStore, cards),
		Subjects:     dirStore,
		Issuer:       auth.NewIssuer(cfg.SecretKey, cfg.Issuer, cfg.AccessTTL),
		Publisher:    audit.NewPublisher(q),
		Events:       events,
		Metrics:      m,
		Limiter:      limiter,
		CookieSecure: cfg.CookieSecure,
		Checks:       checks,
	})

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())
	r.Use(m.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (geofence %.0fm, day zone %s)", cfg.HTTPPort, cfg.Geofence.DefaultRadiusM, loc)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
