package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"groupdrive/config"
	"groupdrive/jobs"
	"groupdrive/journal"
	"groupdrive/metrics"
	"groupdrive/middleware"
	"groupdrive/models"
	"groupdrive/routes"
	"groupdrive/services"
	"groupdrive/storage"
	"groupdrive/store"
	"groupdrive/utils"
)

func main() {
	// Load .env before reading config so it can fill in the environment.
	envFile := loadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := utils.InitLogger(cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.SyncLogger()

	if envFile != "" {
		utils.LogInfo("Loaded environment file", zap.String("path", envFile))
	}
	config.LogConfig(cfg)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MongoDB
	ctx, cancel := config.CreateContext(10 * time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		utils.LogFatal("Failed to connect to MongoDB", err)
	}
	defer func() {
		disconnectCtx, disconnectCancel := config.CreateContext(5 * time.Second)
		defer disconnectCancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			utils.LogError("Failed to disconnect MongoDB", err)
		}
	}()

	if err := mongoClient.Ping(ctx, nil); err != nil {
		utils.LogFatal("Failed to ping MongoDB", err)
	}
	utils.LogInfo("Connected to MongoDB", zap.String("database", cfg.DatabaseName))

	docStore := store.NewMongoStore(mongoClient.Database(cfg.DatabaseName), cfg.MaxBatchSize)
	if err := docStore.EnsureIndexes(ctx, models.FoldersCollection, models.FilesCollection); err != nil {
		utils.LogFatal("Failed to create indexes", err)
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		utils.LogFatal("Failed to initialize object store", err, zap.String("backend", cfg.StorageBackend))
	}

	propagationJournal, err := journal.OpenBadger(cfg.JournalDir)
	if err != nil {
		utils.LogFatal("Failed to open propagation journal", err, zap.String("dir", cfg.JournalDir))
	}
	defer func() {
		if err := propagationJournal.Close(); err != nil {
			utils.LogError("Failed to close propagation journal", err)
		}
	}()

	groupCache, closeCache := newGroupCache(ctx, cfg)
	defer closeCache()

	verifier, err := newVerifier(rootCtx, cfg)
	if err != nil {
		utils.LogFatal("Failed to initialize token verifier", err)
	}

	policy, err := services.ParseTrashPolicy(cfg.TrashPolicy)
	if err != nil {
		utils.LogFatal("Invalid trash policy", err)
	}

	// Services
	permissionService := services.NewPermissionService()
	nodeService := services.NewNodeService(docStore, objects, permissionService, cfg.MaxFileSize)
	propagator := services.NewPropagator(docStore, propagationJournal)
	trashService := services.NewTrashService(nodeService, propagator, policy, cfg.TrashRetention)
	membershipService := services.NewMembershipService(docStore, groupCache)
	utils.LogInfo("Trash lifecycle configured",
		zap.String("policy", string(trashService.Policy())),
		zap.Duration("retention", trashService.Retention()),
	)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	container := routes.NewServiceContainer(nodeService, propagator, trashService, membershipService, verifier, limiter, cfg.MaxFileSize)

	// Router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	routes.SetupRoutesWithContainer(api, container)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	})

	// Background work: first drain what a previous process left pending, then
	// keep the trash within its retention window.
	cleaner := jobs.NewTrashCleaner(trashService, propagator, cfg.TrashCleanupInterval)
	go cleaner.Run(rootCtx)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		utils.LogInfo("Starting GroupDrive server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.LogFatal("Failed to start server", err)
		}
	}()

	<-rootCtx.Done()
	utils.LogInfo("Shutting down server")

	shutdownCtx, shutdownCancel := config.CreateContext(cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.LogError("Server shutdown did not complete cleanly", err)
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "b2":
		return storage.NewB2Store(ctx, cfg.B2ApplicationKeyID, cfg.B2ApplicationKey, cfg.B2BucketName, cfg.URLExpiry)
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			URLExpiry:       cfg.URLExpiry,
		})
	case "memory":
		utils.LogWarning("Using in-memory object store, uploaded content will not survive a restart")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newGroupCache uses Redis when it is configured and reachable, and an
// in-process cache otherwise.
func newGroupCache(ctx context.Context, cfg *config.Config) (services.GroupCache, func()) {
	if cfg.RedisAddr == "" {
		return services.NewMemoryGroupCache(cfg.MembershipTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		utils.LogWarning("Redis unavailable, caching memberships in process",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return services.NewMemoryGroupCache(cfg.MembershipTTL), func() {}
	}

	utils.LogInfo("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	return services.NewRedisGroupCache(client, cfg.MembershipTTL), func() {
		if err := client.Close(); err != nil {
			utils.LogError("Failed to close Redis client", err)
		}
	}
}

func newVerifier(ctx context.Context, cfg *config.Config) (utils.TokenVerifier, error) {
	if cfg.JWTJWKSURL != "" {
		return utils.NewJWKSVerifier(ctx, cfg.JWTJWKSURL)
	}
	return utils.NewHMACVerifier(cfg.JWTSecret)
}

// loadEnvFile loads the first .env found near the working directory and
// returns its path, or "" when there is none.
func loadEnvFile() string {
	pwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	envPaths := []string{
		".env",
		"../.env",
		filepath.Join(filepath.Dir(pwd), ".env"),
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Failed to load %s: %v", envPath, err)
			continue
		}
		absPath, _ := filepath.Abs(envPath)
		return absPath
	}
	return ""
}
