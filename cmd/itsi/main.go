package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/itsi-run/itsi/pkg"
)

var (
	binds         = flag.String("bind", "http://0.0.0.0:3000", "Comma-separated list of bind URIs, e.g. https://0.0.0.0:8443?cert=...,unix:///tmp/itsi.sock")
	configFile    = flag.String("config", "itsi.toml", "Configuration file path")
	workers       = flag.Int("workers", 1, "Worker process count (cluster mode when >1)")
	threads       = flag.Int("threads", 0, "Scheduler threads per worker (0 = runtime.NumCPU())")
	dbDriver      = flag.String("db-driver", "sqlite", "Database driver (mysql, postgres, mssql, sqlite) backing rate-limit/session/ban stores")
	dbHost        = flag.String("db-host", "localhost", "Database host")
	dbPort        = flag.Int("db-port", 5432, "Database port")
	dbName        = flag.String("db-name", "itsi.db", "Database name")
	dbUser        = flag.String("db-user", "", "Database username")
	dbPass        = flag.String("db-pass", "", "Database password")
	enableMetrics = flag.Bool("metrics", true, "Enable metrics endpoint")
	enablePprof   = flag.Bool("pprof", false, "Enable pprof debugging endpoints")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	version       = flag.Bool("version", false, "Print version and exit")
)

const appVersion = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("itsi v%s\n", appVersion)
		os.Exit(0)
	}

	printBanner()

	if err := validateFlags(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	config := createConfig()

	app, err := pkg.New(config)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	setupHooks(app)
	setupRoutes(app)

	log.Printf("starting itsi on %s (workers=%d)", *binds, *workers)
	if err := startServer(app); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   itsi                                                   ║
║                                                           ║
║   Concurrent HTTP/1.1, HTTP/2, HTTP/3 and gRPC server     ║
║   Version %-48s║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, appVersion)
}

func validateFlags() error {
	if _, err := pkg.ParseBindList(*binds); err != nil {
		return fmt.Errorf("invalid --bind: %w", err)
	}

	if *workers < 1 {
		return fmt.Errorf("--workers must be >= 1")
	}

	if *dbPort < 1 || *dbPort > 65535 {
		return fmt.Errorf("invalid database port: %d", *dbPort)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[*logLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", *logLevel)
	}

	return nil
}

func createConfig() pkg.FrameworkConfig {
	config := pkg.FrameworkConfig{
		ServerConfig: pkg.ServerConfig{
			Binds:            *binds,
			Workers:          *workers,
			SchedulerThreads: *threads,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      120 * time.Second,
			MaxHeaderBytes:   2 << 20,
			EnableHTTP1:      true,
			EnableHTTP2:      true,
			EnableHTTP3:      false,
			EnableGRPC:       true,
			EnableMetrics:    *enableMetrics,
			MetricsPath:      "/metrics",
			EnablePprof:      *enablePprof,
			PprofPath:        "/debug/pprof",
			ShutdownTimeout:  30 * time.Second,
		},
		DatabaseConfig: pkg.DatabaseConfig{
			Driver:          *dbDriver,
			Host:            *dbHost,
			Port:            *dbPort,
			Database:        *dbName,
			Username:        *dbUser,
			Password:        *dbPass,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		CacheConfig: pkg.CacheConfig{
			DefaultTTL: 5 * time.Minute,
		},
		SecurityConfig: pkg.SecurityConfig{
			MaxRequestSize:   10 * 1024 * 1024,
			RequestTimeout:   30 * time.Second,
			CSRFTokenExpiry:  24 * time.Hour,
			EncryptionKey:    "",
			JWTSecret:        "",
			XFrameOptions:    "DENY",
			EnableXSSProtect: true,
			EnableCSRF:       true,
			AllowedOrigins:   []string{"*"},
		},
	}

	if *configFile != "" {
		if _, err := os.Stat(*configFile); err == nil {
			config.ConfigFiles = []string{*configFile}
			log.Printf("loading configuration from: %s", *configFile)
		} else {
			log.Printf("config file not found: %s (using flag defaults)", *configFile)
		}
	}

	return config
}

func setupHooks(app *pkg.Framework) {
	app.RegisterStartupHook(func(ctx context.Context) error {
		log.Println("database connections initialized")
		return nil
	})

	app.RegisterStartupHook(func(ctx context.Context) error {
		log.Println("configuration loaded")
		return nil
	})

	app.RegisterStartupHook(func(ctx context.Context) error {
		log.Printf("binds: %s", *binds)
		return nil
	})

	app.RegisterStartupHook(func(ctx context.Context) error {
		log.Println("server ready")
		return nil
	})

	app.RegisterShutdownHook(func(ctx context.Context) error {
		log.Println("graceful shutdown initiated")
		return nil
	})

	app.RegisterShutdownHook(func(ctx context.Context) error {
		log.Println("cleaning up resources")
		return nil
	})
}

func setupRoutes(app *pkg.Framework) {
	router := app.Router()

	router.GET("/health", handleHealth)
	router.GET("/ready", handleReady)
	router.GET("/", handleRoot)

	api := router.Group("/api/v1")
	api.GET("/status", handleAPIStatus)
	api.GET("/info", handleAPIInfo)
	api.GET("/greeting", handleGreeting)
}

// greetings is the demo handler's own locale table — translation is the
// application's job, not itsi-server's; the handler only shows what a terminal
// route sees through Context (query params, the cache manager, JSON replies).
var greetings = map[string]string{
	"en": "hello",
	"de": "hallo",
	"es": "hola",
	"fr": "bonjour",
}

func handleGreeting(ctx pkg.Context) error {
	locale := ctx.Query()["locale"]
	message, ok := greetings[locale]
	if !ok {
		locale, message = "en", greetings["en"]
	}

	const counterKey = "demo:greeting:hits"
	var hits int64
	if cached, err := ctx.Cache().Get(counterKey); err == nil {
		if n, ok := cached.(int64); ok {
			hits = n
		}
	}
	hits++
	if err := ctx.Cache().Set(counterKey, hits, 0); err != nil {
		hits = 0
	}

	return ctx.JSON(200, map[string]interface{}{
		"message": message,
		"locale":  locale,
		"hits":    hits,
	})
}

func handleHealth(ctx pkg.Context) error {
	return ctx.JSON(200, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(startTime).Seconds(),
	})
}

func handleReady(ctx pkg.Context) error {
	return ctx.JSON(200, map[string]interface{}{
		"status": "ready",
	})
}

func handleRoot(ctx pkg.Context) error {
	endpoints := map[string]string{
		"health": "/health",
		"ready":  "/ready",
		"api":    "/api/v1",
	}

	if *enableMetrics {
		endpoints["metrics"] = "/metrics"
	}
	if *enablePprof {
		endpoints["pprof"] = "/debug/pprof"
	}

	return ctx.JSON(200, map[string]interface{}{
		"message":   "itsi",
		"version":   appVersion,
		"endpoints": endpoints,
	})
}

func handleAPIStatus(ctx pkg.Context) error {
	return ctx.JSON(200, map[string]interface{}{
		"api_version": "v1",
		"status":      "operational",
		"timestamp":   time.Now().Unix(),
	})
}

func handleAPIInfo(ctx pkg.Context) error {
	return ctx.JSON(200, map[string]interface{}{
		"server":    "itsi",
		"version":   appVersion,
		"protocols": []string{"HTTP/1.1", "HTTP/2", "gRPC"},
		"database":  *dbDriver,
	})
}

var startTime = time.Now()

// Graceful shutdown and the rest of the §6 signal table (restart, reload,
// worker count, reap) are wired inside Framework.ListenBinds via
// pkg.SignalManager, so main doesn't install its own handler here.

func startServer(app *pkg.Framework) error {
	return app.ListenBinds(*binds, *workers)
}
