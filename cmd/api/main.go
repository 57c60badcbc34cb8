package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"frameart/internal/bootstrap"
	"frameart/internal/composer"
	"frameart/internal/config"
	"frameart/internal/derived"
	"frameart/internal/domain"
	"frameart/internal/domain/jsoncfg"
	"frameart/internal/history"
	"frameart/internal/http/handlers"
	httpapi "frameart/internal/http/httpapi"
	"frameart/internal/infra"
	"frameart/internal/normalize"
	"frameart/internal/providers/video"
	"frameart/internal/scheduler"
	"frameart/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: load catalog")
	}

	files, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: configure storage")
	}
	var mirror *storage.Mirror
	if cfg.S3.Enabled() {
		mirror, err = storage.NewMirror(storage.MirrorOptions{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("api: configure mirror")
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Str("bucket", cfg.S3.Bucket).Msg("api: mirror bucket unavailable")
		}
	}
	assets, err := storage.NewAssetStore(storage.AssetStoreOptions{Files: files, Mirror: mirror, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: configure asset store")
	}

	client := bootstrap.HTTPClient(cfg)
	writer, err := bootstrap.PromptWriter(cfg, client, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.PromptProvider).Msg("api: configure prompt writer")
	}
	generator, err := bootstrap.ImageGenerator(cfg, cfg.ImageProvider, "", client, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.ImageProvider).Msg("api: configure image generator")
	}

	comp, err := composer.New(composer.Options{
		History:      history.New(history.Options{Size: cfg.HistorySize}),
		Writer:       writer,
		Styles:       catalog.Styles,
		Compositions: catalog.Compositions,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: configure composer")
	}

	cache := derived.New(derived.Options{
		OnEvict: func(art domain.DerivedArtifact) {
			if err := assets.RemoveArtifact(context.Background(), art); err != nil {
				logger.Warn().Err(err).Str("key", art.StorageKey).Msg("api: remove stale video")
			}
		},
	})

	policy, err := scheduler.ParsePolicy(cfg.ConcurrencyPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: concurrency policy")
	}
	settings := jsoncfg.DefaultSettings()
	settings.Interval = cfg.RefreshInterval
	if catalog.Theme != "" {
		settings.Theme = catalog.Theme
	}

	sched, err := scheduler.New(scheduler.Options{
		Composer:   comp,
		Generator:  generator,
		Normalizer: normalize.New(normalize.Options{}),
		Sink:       assets,
		Derived:    cache,
		Renderer: video.NewKenBurns(video.Options{
			FFmpegPath: cfg.FFmpegPath,
			Seconds:    cfg.VideoSeconds,
			Logger:     &logger,
		}),
		Policy:   policy,
		Settings: settings,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: configure scheduler")
	}

	app, err := handlers.NewApp(handlers.AppOptions{Frame: sched, Uploads: files, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: configure handlers")
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		DataDir:         cfg.DataDir,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router, ctx)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("prompt_provider", cfg.PromptProvider).
			Str("image_provider", cfg.ImageProvider).
			Str("policy", policy.String()).
			Dur("refresh", settings.Interval).
			Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown")
	}
	logger.Info().Msg("api: stopped")
}
