package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/trackforge/backend/internal/config"
	"github.com/trackforge/backend/internal/handlers"
	"github.com/trackforge/backend/internal/middleware"
	"github.com/trackforge/backend/internal/models"
	"github.com/trackforge/backend/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.New()

	// Initialize database
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg)
	defer redisClient.Close()

	// Initialize services
	s3Service, err := services.NewS3Service(cfg)
	if err != nil {
		log.Fatalf("Failed to init S3 service: %v", err)
	}
	storageService := services.NewStorageService(cfg)
	uploadService := services.NewUploadService(s3Service, cfg)
	planService := services.NewPlanService(cfg, redisClient)
	releaseService := services.NewReleaseService(db, cfg, uploadService, storageService, planService)
	coverArtService := services.NewCoverArtService(db, cfg, uploadService, storageService)
	submissionService := services.NewSubmissionService(db, cfg, planService, coverArtService)

	providers := []services.SearchProvider{
		services.NewSpotifySearch(cfg),
		services.NewAppleSearch(cfg),
		services.NewYouTubeSearch(cfg),
	}
	resolverService := services.NewArtistResolverService(db, cfg, providers)

	// Discarding a draft must also drop its transient search/checklist state.
	releaseService.AttachCleanup(resolverService, coverArtService)

	// Reap idle resolver sessions in the background
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			if reaped := resolverService.ReapIdleSessions(); reaped > 0 {
				log.Printf("Resolver session cleanup: dropped %d idle sessions", reaped)
			}
		}
	}()

	// Setup Gin router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))

	// Initialize handlers
	releaseHandler := handlers.NewReleaseHandler(releaseService)
	artistHandler := handlers.NewArtistHandler(releaseService, resolverService, planService)
	coverArtHandler := handlers.NewCoverArtHandler(releaseService, coverArtService)
	planHandler := handlers.NewPlanHandler(planService)
	mediaHandler := handlers.NewMediaHandler(releaseService, s3Service, storageService, cfg)
	submissionHandler := handlers.NewSubmissionHandler(releaseService, submissionService)

	// Health check outside API group (no /api/v1 prefix)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Setup routes
	api := router.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		// Catch-all OPTIONS handler for CORS preflight requests
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		authed := api.Group("")
		authed.Use(middleware.Auth(cfg))
		{
			authed.GET("/plans/:key/rules", planHandler.GetPlanRules)

			releases := authed.Group("/releases")
			{
				releases.POST("", releaseHandler.CreateRelease)
				releases.GET("/:id", releaseHandler.GetRelease)
				releases.PATCH("/:id", releaseHandler.UpdateRelease)
				releases.DELETE("/:id", releaseHandler.DeleteRelease)

				releases.POST("/:id/tracks", releaseHandler.AddTrack)
				releases.PATCH("/:id/tracks/:trackId", releaseHandler.UpdateTrack)
				releases.DELETE("/:id/tracks/:trackId", releaseHandler.DeleteTrack)

				releases.GET("/:id/audio-files/unassigned", releaseHandler.ListUnassignedAudioFiles)
				releases.GET("/:id/audio-files/:audioId/download-url", mediaHandler.AudioDownloadURL)
				releases.DELETE("/:id/audio-files/:audioId", releaseHandler.DeleteAudioFile)

				releases.POST("/:id/artist-input", artistHandler.ArtistInput)
				releases.GET("/:id/artist-results", artistHandler.ArtistResults)
				releases.PUT("/:id/artists/:platform", artistHandler.SetArtistProfile)
				releases.GET("/:id/artist-prefill", artistHandler.ArtistPrefill)

				releases.GET("/:id/cover-art", mediaHandler.CoverArtPreview)
				releases.GET("/:id/cover-art/checklist", coverArtHandler.CoverArtChecklist)

				releases.GET("/:id/validation", submissionHandler.ValidateRelease)
				releases.POST("/:id/submit", submissionHandler.SubmitRelease)
			}

			// Media uploads carry a per-user daily cap on top of the global
			// rate limiter.
			uploads := authed.Group("/releases")
			uploads.Use(middleware.UploadRateLimiter(redisClient, cfg))
			{
				uploads.POST("/:id/audio-files", releaseHandler.UploadAudioFile)
				uploads.POST("/:id/cover-art", coverArtHandler.UploadCoverArt)
			}
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  120 * time.Second, // 2 min for large audio uploads
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
