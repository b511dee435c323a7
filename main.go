package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Espresso-Aficionados/sprobot/audit"
	"github.com/Espresso-Aficionados/sprobot/authorization"
	"github.com/Espresso-Aficionados/sprobot/cache"
	"github.com/Espresso-Aficionados/sprobot/config"
	"github.com/Espresso-Aficionados/sprobot/deletion"
	"github.com/Espresso-Aficionados/sprobot/images"
	"github.com/Espresso-Aficionados/sprobot/logging"
	"github.com/Espresso-Aficionados/sprobot/profiles"
	"github.com/Espresso-Aficionados/sprobot/storage"
	"github.com/Espresso-Aficionados/sprobot/templates"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so fall back to a default one.
		zap.Must(zap.NewProduction()).Fatal("Invalid configuration", zap.Error(err))
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := templates.Load(cfg.Profiles.TemplatesFile, cfg.Environment)
	if err != nil {
		return err
	}
	log.Info("Templates loaded", zap.String("env", cfg.Environment), zap.Strings("communities", registry.Communities()))

	objects, memObjects, err := openObjectStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	profileCache, err := cache.NewProfileCache(cfg.Profiles.CacheSize, log.Named("cache"))
	if err != nil {
		return err
	}

	var recorder interface {
		audit.Recorder
		audit.Lister
	} = audit.NopRecorder{}
	if cfg.Database.DSN != "" {
		db, err := audit.OpenDatabase(cfg.Database)
		if err != nil {
			return err
		}
		gormRecorder, err := audit.NewGormRecorder(db)
		if err != nil {
			return err
		}
		recorder = gormRecorder
	} else {
		log.Info("DATABASE_DSN not set; audit trail disabled")
	}

	service := profiles.NewService(
		profiles.NewObjectDocumentStore(objects, log.Named("store")),
		profileCache,
		images.NewRelocator(objects, cfg.Images, log.Named("images")),
		profiles.ServiceConfig{
			WebEndpoint: cfg.Profiles.WebEndpoint,
			Bucket:      objects.Bucket(),
			Recorder:    recorder,
		},
		log.Named("profiles"),
	)

	var sessions deletion.SessionStore = deletion.NewMemoryStore()
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = deletion.NewRedisStore(redisClient)
	}
	flow := deletion.NewFlow(sessions, service, registry, cfg.Deletions.ConfirmationTTL, log.Named("deletion"))

	router := newRouter(cfg, log)
	if memObjects != nil {
		serveMemoryObjects(router, memObjects)
	}
	auth, err := authorization.RegisterRoutes(router, cfg.Auth, log.Named("auth"))
	if err != nil {
		return err
	}
	guard := auth.Guard()
	profiles.RegisterRoutes(router, guard, service, registry)
	deletion.RegisterRoutes(router, guard, flow)
	audit.RegisterRoutes(router, guard, recorder)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openObjectStore returns the configured bucket. The memory backend is also
// returned on its own so its objects can be served over HTTP.
func openObjectStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.ObjectStore, *storage.MemoryStore, error) {
	if cfg.Backend == config.StorageMemory {
		log.Warn("Using in-memory object storage; profiles and images are lost on restart",
			zap.String("public_url", cfg.PublicURL))
		mem := storage.NewMemoryStore(cfg.PublicURL, cfg.Bucket)
		return mem, mem, nil
	}

	minioStore, err := storage.NewMinioStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		return nil, nil, err
	}
	return minioStore, nil, nil
}

// serveMemoryObjects exposes public-read objects of the memory backend at
// the same URLs the store hands out.
func serveMemoryObjects(router *gin.Engine, objects *storage.MemoryStore) {
	router.GET(config.MemoryObjectsPath+"/:bucket/*key", func(c *gin.Context) {
		obj, ok := objects.Object(strings.TrimPrefix(c.Param("key"), "/"))
		if c.Param("bucket") != objects.Bucket() || !ok || !obj.Opts.PublicRead {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		if obj.Opts.CacheControl != "" {
			c.Header("Cache-Control", obj.Opts.CacheControl)
		}
		c.Data(http.StatusOK, obj.Opts.ContentType, obj.Data)
	})
}

func newRouter(cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log.Named("http")))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
