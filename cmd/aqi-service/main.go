package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/i474232898/aqi-service/internal/airquality"
	"github.com/i474232898/aqi-service/internal/airquality/providers"
	httpapi "github.com/i474232898/aqi-service/internal/api/http"
	"github.com/i474232898/aqi-service/internal/config"
	"github.com/i474232898/aqi-service/internal/logging"
	"github.com/i474232898/aqi-service/internal/regression"
	"github.com/i474232898/aqi-service/internal/store"
)

const appName = "aqi-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg := logging.New(os.Stdout, cfg, appName)

	// A missing or broken artifact is not fatal: the service still serves
	// realtime and simulated data and answers every prediction with 500.
	artifact, err := regression.Load(cfg.ModelPath)
	if err != nil {
		lg.Error("model artifact not loaded, predictions disabled", "path", cfg.ModelPath, "error", err)
	} else {
		lg.Info("model artifact loaded",
			"path", cfg.ModelPath,
			"model", artifact.Name,
			"family", artifact.Family,
			"features", len(artifact.Features),
			"rmse", artifact.Metrics.RMSE,
		)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	providerLog := logging.Component(lg, "providers")
	iqair := providers.NewIQAirProvider(httpClient, providers.Config{
		BaseURL:    cfg.IQAir.BaseURL,
		APIKey:     cfg.IQAir.APIKey,
		MaxRetries: cfg.ProviderMaxRetries,
	}, providerLog)
	owm := providers.NewOpenWeatherProvider(httpClient, providers.Config{
		BaseURL:    cfg.OpenWeather.BaseURL,
		APIKey:     cfg.OpenWeather.APIKey,
		MaxRetries: cfg.ProviderMaxRetries,
	}, providerLog)

	if cfg.IQAir.APIKey == "" {
		lg.Warn("IQAIR_API_KEY not set, realtime requests will go straight to OpenWeatherMap")
	}
	if cfg.OpenWeather.APIKey == "" {
		lg.Warn("OPENWEATHER_API_KEY not set, no realtime fallback available")
	}

	deps := httpapi.Deps{
		Predictor:   airquality.NewPredictionService(artifact),
		Realtime:    airquality.NewRealtimeAggregator(iqair, owm, logging.Component(lg, "realtime")),
		Simulator:   airquality.NewSimulator(),
		Cities:      store.NewCityCatalog(cfg.Cities),
		DefaultCity: cfg.DefaultCity,
		Logger:      logging.Component(lg, "http"),
	}

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Realtime may wait on two providers in sequence.
		WriteTimeout: 2*cfg.HTTPTimeout + 5*time.Second,
		ErrorHandler: httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	httpapi.RegisterRoutes(app, deps)

	go func() {
		lg.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv, "model_loaded", artifact != nil)
		if err := app.Listen(":" + cfg.Port); err != nil {
			lg.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("error during shutdown", "error", err)
	}
}
