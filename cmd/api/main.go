package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"promptbatch/internal/batch"
	"promptbatch/internal/clipboard"
	"promptbatch/internal/export"
	"promptbatch/internal/http/handlers"
	httpapi "promptbatch/internal/http/httpapi"
	"promptbatch/internal/i18n"
	"promptbatch/internal/imagegen"
	"promptbatch/internal/infra"
	"promptbatch/internal/infra/credentials"
	"promptbatch/internal/infra/geoip"
	"promptbatch/internal/middleware"
	"promptbatch/internal/providers/genai"
	"promptbatch/internal/providers/image"
	"promptbatch/internal/providers/qwen"
	"promptbatch/internal/realtime"
	"promptbatch/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The database only backs the provider key store.
	var keys *credentials.Store
	dbpool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case err == nil:
		defer dbpool.Close()
		keys = credentials.NewStore(infra.NewSQLRunner(dbpool, logger))
		if err := keys.EnsureSchema(ctx); err != nil {
			logger.Warn().Err(err).Msg("provider key table unavailable")
		}
	case errors.Is(err, infra.ErrDatabaseDisabled):
		logger.Info().Msg("database disabled, provider keys come from the environment")
	default:
		logger.Fatal().Err(err).Msg("failed to connect database")
	}

	qwenKey, err := keys.Resolve(ctx, credentials.ProviderQwen, cfg.QwenAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load qwen api key")
	}
	geminiKey, err := keys.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load gemini api key")
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to init storage")
	}

	provider, err := buildProvider(cfg, qwenKey, geminiKey, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.ImageProvider).Msg("failed to init image provider")
	}

	service, err := imagegen.NewService(imagegen.Options{
		Provider:      provider,
		ProviderName:  cfg.ImageProvider,
		Store:         store,
		PublicBaseURL: cfg.StorageBaseURL,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init image service")
	}

	var clip batch.Clipboard
	if sys := clipboard.New(cfg.ClipboardEnabled); sys != nil {
		clip = sys
	} else {
		logger.Info().Msg("clipboard unavailable, copy actions will report an error")
	}

	catalog := i18n.Default()
	var controller *batch.Controller
	hub := realtime.NewHub(realtime.Options{
		Current:        func() batch.Snapshot { return controller.Snapshot() },
		Catalog:        catalog,
		Logger:         &logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	controller, err = batch.NewController(batch.Options{
		Generator:  service,
		Clipboard:  clip,
		Publisher:  hub,
		Logger:     &logger,
		JobTimeout: cfg.GenerationTimeout,
		NoticeTTL:  cfg.NoticeTTL,
		CopiedTTL:  cfg.CopiedIndicatorTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init batch controller")
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Controller: controller,
		Hub:        hub,
		Exporter: export.NewExporter(export.Options{
			Store:          store,
			StorageBaseURL: cfg.StorageBaseURL,
			Logger:         &logger,
		}),
		Store:   store,
		Catalog: catalog,
		Logger:  &logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  lookup,
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	server := infra.NewHTTPServer(cfg, router)
	logger.Info().Str("provider", cfg.ImageProvider).Str("storage", cfg.StorageDriver).Msgf("API listening on %s", server.Addr())
	if err := server.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}

	controller.Close()
	stopHub()
	logger.Info().Msg("server stopped")
}

func buildStore(ctx context.Context, cfg *infra.Config) (storage.Store, error) {
	if cfg.StorageDriver == infra.StorageDriverMinio {
		return storage.NewObjectStore(ctx, storage.ObjectOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return storage.NewFileStore(cfg.StoragePath)
}

// buildProvider picks the image backend. Gemini doubles as the synthetic
// renderer when it has no key.
func buildProvider(cfg *infra.Config, qwenKey, geminiKey string, logger *infra.Logger) (image.Generator, error) {
	geminiOpts := genai.Options{
		APIKey:  geminiKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  logger,
	}
	if cfg.ImageProvider == infra.ImageProviderSynthetic {
		geminiOpts.APIKey = ""
	}
	gemini, err := genai.NewClient(geminiOpts)
	if err != nil {
		return nil, err
	}
	fallback := image.NewGeminiGenerator(gemini)

	if cfg.ImageProvider != infra.ImageProviderQwen {
		return fallback, nil
	}
	client, err := qwen.NewClient(qwen.Options{
		APIKey:         qwenKey,
		BaseURL:        cfg.QwenBaseURL,
		Model:          cfg.QwenModel,
		Logger:         logger,
		RequestTimeout: cfg.GenerationTimeout,
	})
	if err != nil {
		return nil, err
	}
	return image.NewQwenGenerator(client, fallback, logger), nil
}
