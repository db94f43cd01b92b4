package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"academy/internal/course"
	"academy/internal/http/handlers"
	httpapi "academy/internal/http/httpapi"
	"academy/internal/infra"
	"academy/internal/infra/geoip"
	"academy/internal/lookupcache"
	"academy/internal/middleware"
	"academy/internal/providers/image"
	"academy/internal/providers/openai"
	"academy/internal/providers/speech"
	"academy/internal/providers/youtube"
	"academy/internal/recommend"
	"academy/internal/rowstore"
	"academy/internal/storage"
	"academy/internal/studio"
	"academy/internal/trends"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	rows := rowstore.NewPGStore(infra.NewSQLRunner(dbpool, logger))
	if err := rows.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare entity table")
	}

	blobs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var countryLookup middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		countryLookup = resolver.CountryCode
	}

	ai := openai.NewClient(openai.Options{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		ChatModel:   cfg.OpenAIChatModel,
		ImageModel:  cfg.OpenAIImageModel,
		SpeechModel: cfg.OpenAITTSModel,
		Voice:       cfg.OpenAITTSVoice,
		Logger:      &logger,
	})
	var images image.Generator = image.NewSynthetic()
	var voice speech.Generator = speech.NewSynthetic()
	if ai.HasCredentials() {
		images = image.NewOpenAIGenerator(ai, images)
		voice = speech.NewOpenAIGenerator(ai, voice)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; using synthetic generators")
	}

	yt := youtube.NewClient(youtube.Options{
		APIKey:  cfg.YouTubeAPIKey,
		BaseURL: cfg.YouTubeBaseURL,
		Logger:  &logger,
	})
	defer yt.Close()
	if !yt.HasCredentials() {
		logger.Warn().Msg("YOUTUBE_API_KEY not set; trend lookups will fail")
	}

	var (
		reportStore lookupcache.CacheStore[trends.Report]
		quotaStore  lookupcache.QuotaStore
	)
	if cfg.RedisURL != "" {
		rdb, err := lookupcache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		defer rdb.Close()
		redisOpts := lookupcache.RedisOptions{Prefix: "academy:trends", Logger: &logger}
		reportStore = lookupcache.NewRedisCacheStore[trends.Report](rdb, redisOpts)
		quotaStore = lookupcache.NewRedisQuotaStore(rdb, redisOpts)
	}
	reportCache := lookupcache.New(reportStore, quotaStore, lookupcache.Options{
		DailyLimit: cfg.TrendDailyLimit,
		Location:   lookupcache.LoadLocation(cfg.QuotaTimezone),
	})

	courses := course.New(rows, course.Options{Logger: &logger})
	studioSvc := studio.New(images, voice, ai, blobs, studio.Options{
		MaxScenes:   cfg.MaxScenes,
		CallTimeout: cfg.GenerationCallTimeout,
		Logger:      &logger,
	})

	app := &handlers.App{
		Logger:      &logger,
		Courses:     courses,
		Trends:      trends.NewAnalyzer(reportCache, yt, trends.Options{TTL: cfg.TrendCacheTTL, Logger: &logger}),
		Recommender: recommend.New(ai, courses.Courses(), &logger),
		Studio:      studioSvc,
		JWTSecret:   cfg.JWTSecret,
		Ping:        dbpool.Ping,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   countryLookup,
		StaticDir:       blobs.BasePath(),
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := studioSvc.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("studio runs did not stop in time")
	}
	logger.Info().Msg("server stopped")
}
