package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trimly/trimly/pkg/trimly/auth"
	"github.com/trimly/trimly/pkg/trimly/cache"
	"github.com/trimly/trimly/pkg/trimly/config"
	"github.com/trimly/trimly/pkg/trimly/database"
	"github.com/trimly/trimly/pkg/trimly/expiry"
	"github.com/trimly/trimly/pkg/trimly/links"
	"github.com/trimly/trimly/pkg/trimly/models"
	"github.com/trimly/trimly/pkg/trimly/redirect"
	"github.com/trimly/trimly/pkg/trimly/tasks"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.Load()
	auth.SetSecret(cfg.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.DBPath); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database migrations completed")

	// Cache tier: Redis when configured, in-process fallback otherwise.
	// Every path works without Redis, just without cross-process sharing.
	linkCache := buildCache(cfg, log)

	// Background executor for warm-path stats bumps
	runner := tasks.NewRunner(4, 1024, log)
	defer runner.Close()

	svc := links.NewService(database.GetDB(), linkCache, runner, log)

	sweeper := expiry.NewSweeper(svc, cfg.SweepInterval, log)
	sweeper.Start()
	defer sweeper.Stop()

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// User routes (public)
	authHandler := auth.NewHandler(database.GetDB())
	authHandler.RegisterRoutes(r.Group("/users"))

	// Link management and redirect routes share the /links group; the bare
	// :code redirect is registered last within the group.
	linksGroup := r.Group("/links")
	linksHandler := links.NewHandler(svc, cfg.BaseURL)
	linksHandler.RegisterRoutes(linksGroup)

	redirectHandler := redirect.NewHandler(svc)
	redirectHandler.RegisterRoutes(linksGroup)

	log.Info().Str("port", cfg.Port).Msg("starting trimly server")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// buildCache returns the Redis-backed cache when REDIS_URL is set and
// reachable-looking, and the in-process cache otherwise.
func buildCache(cfg *config.Config, log zerolog.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, using in-process cache")
		return cache.NewMemory()
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, using in-process cache")
		return cache.NewMemory()
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second

	log.Info().Str("addr", opt.Addr).Msg("using redis cache")
	return cache.NewRedis(redis.NewClient(opt))
}
