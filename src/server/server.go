package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	app "gallery/src/app"
	cfg "gallery/src/configuration"
	"gallery/src/repository"
)

// NewBackend builds the storage backend selected by STORAGE_BACKEND.
func NewBackend(ctx context.Context, config *cfg.Properties) (app.Backend, error) {
	switch config.Storage.Backend {
	case cfg.BackendMemory:
		return repository.NewMemoryStore(config.Storage.MemoryBase), nil
	case cfg.BackendS3:
		endpoint := ""
		if config.S3.Host != "" {
			scheme := "http"
			if config.S3.UseSSL {
				scheme = "https"
			}
			endpoint = fmt.Sprintf("%s://%s", scheme, config.S3.Host)
		}
		client, err := app.NewAWSS3Client(ctx, app.AWSClientConfig{
			Endpoint:        endpoint,
			Region:          config.S3.Region,
			AccessKeyID:     config.S3.AccessKey,
			SecretAccessKey: config.S3.SecretKey,
			UsePathStyle:    config.S3.PathStyle,
			PublicBase:      config.S3.PublicBase,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		client, err := app.NewMinioS3Client(
			config.S3.Host,
			config.S3.AccessKey,
			config.S3.SecretKey,
			config.S3.Region,
			config.S3.PublicBase,
			config.S3.UseSSL)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func NewRouter(config *cfg.Properties, albums app.AlbumsCollection, metrics *Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), metrics.Middleware())
	router.Use(cors.New(corsConfig(config.Server.AllowOrigins)))
	if config.Server.Pprof {
		pprof.Register(router)
	}

	handler := NewGalleryHandler(albums, metrics)

	// Register Routes
	router.GET("/health", handler.GetHealth)
	router.GET("/metrics", metrics.Handler())

	gallery := router.Group("/gallery")
	gallery.GET("", handler.GetAlbums)
	gallery.POST("/:album", handler.CreateAlbum)
	gallery.GET("/:album", handler.GetAlbum)
	gallery.POST("/:album/image", handler.PostImage)
	gallery.DELETE("/:album/images", handler.PurgeAlbum)
	gallery.DELETE("/:album/image/:image", handler.DeleteImage)
	gallery.POST("/:album/image/:image/move/:target", handler.MoveImage)

	router.NoRoute(func(ctx *gin.Context) { ctx.JSON(http.StatusNotFound, gin.H{}) })
	return router
}

// corsConfig allows any origin, without credentials, when no origins are configured.
func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return config
}

// newHTTPServer bounds header reads only by default; request bodies stream for as long as the upload takes.
func newHTTPServer(config *cfg.Properties, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: config.Server.ReadHeaderTimeout,
		ReadTimeout:       config.Server.ReadTimeout,
		WriteTimeout:      config.Server.WriteTimeout,
	}
}

func RunServer(config *cfg.Properties) {
	if err := app.EnsureDir(config.Storage.TempDir); err != nil {
		log.Fatalf("can not prepare temp dir: %v", err)
	}

	backend, err := NewBackend(context.Background(), config)
	if err != nil {
		log.Fatalf("can not create %s storage backend: %v", config.Storage.Backend, err)
	}
	log.WithFields(log.Fields{
		"backend": config.Storage.Backend,
		"host":    config.S3.Host,
		"project": config.S3.Project,
		"tempDir": config.Storage.TempDir,
	}).Info("storage backend ready")

	albums := app.NewAlbumsCollection(app.CollectionConfig{
		Backend:      backend,
		TempDir:      config.Storage.TempDir,
		PurgeWorkers: config.Storage.PurgeWorkers,
	})

	srv := newHTTPServer(config, NewRouter(config, albums, NewMetrics()))

	go func() {
		log.Infof("%s listening on :%s", config.Server.Name, config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("forced shutdown: %v", err)
	}
}
