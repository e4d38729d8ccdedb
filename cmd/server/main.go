package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sdiallo/browserpilot/internal/api"
	"github.com/sdiallo/browserpilot/internal/config"
	"github.com/sdiallo/browserpilot/internal/orchestrator"
	"github.com/sdiallo/browserpilot/internal/ratelimit"
	"github.com/sdiallo/browserpilot/internal/winsys"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Starting BrowserPilot...")

	cfg, err := config.Load(os.Getenv("BROWSERPILOT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("✓ Configuration loaded")

	// Window system backend (wmctrl/xdotool)
	desktop := winsys.NewWMCtl()
	log.Println("✓ Window system backend initialized (wmctrl)")

	// Orchestrator: tracker + capability detector + mode selector
	orch := orchestrator.New(orchestrator.Options{
		Config:     cfg,
		Enumerator: desktop,
		Activator:  desktop,
	})
	orch.Start(context.Background())
	defer orch.Stop()
	log.Printf("✓ Orchestrator started (scan every %s)", cfg.ScanInterval)

	// Initial scan so the API has contexts before the first tick
	orch.Scan(context.Background())

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimit, cfg.Burst)
	log.Printf("✓ Rate limiter initialized (%d req/hour per caller)", cfg.RateLimit)

	handler := api.NewHandler(orch)
	router := handler.SetupRoutes(rateLimiter, cfg.RateLimit)
	log.Println("✓ HTTP routes configured")

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🚀 Server starting on %s", cfg.ListenAddr)
		log.Printf("📍 API endpoints available at http://localhost%s/v1", cfg.ListenAddr)
		log.Printf("🖥  Contexts: scan, classify, and switch between desktop windows")
		log.Printf("🔍 Capabilities: CDP discovery on ports %v, cache TTL %s", cfg.DebugPorts, cfg.CacheTTL)
		log.Printf("⏱️  Rate Limit: %d requests/hour per caller", cfg.RateLimit)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("\n⏳ Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
