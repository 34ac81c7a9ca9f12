package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/ogier/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/handpose/internal/annotate"
	"github.com/ayusman/handpose/internal/app"
	"github.com/ayusman/handpose/internal/config"
	"github.com/ayusman/handpose/internal/gateway"
	"github.com/ayusman/handpose/internal/server"
	"github.com/ayusman/handpose/internal/store"
	"github.com/ayusman/handpose/internal/yolo"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("Hand pose detection service")

	// Optional request log
	var st *store.Store
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		st, err = store.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		defer st.Close()
		log.Printf("Recording requests to %s", cfg.DBPath)
	}

	loader, err := yolo.NewLoader(cfg.LoaderOptions())
	if err != nil {
		log.Fatalf("Failed to configure backend: %v", err)
	}

	gwConfig := cfg.GatewayConfig()
	gwConfig.Loader = loader
	gw := gateway.New(gwConfig)
	defer gw.Close()

	style, err := cfg.Style()
	if err != nil {
		log.Fatalf("Invalid palette: %v", err)
	}

	pipeline := app.New(app.Config{
		Gateway:   gw,
		Annotator: annotate.New(style),
		Store:     st,
		Debug:     cfg.Debug,
	})

	// Find web directory
	webDir := cfg.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Printf("Serving static files from: %s", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       pipeline,
		Store:     st,
	})
	httpServer := srv.NewHTTPServer(cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting server on %s (model %s, %s backend, %s)", cfg.Addr, cfg.ModelPath, cfg.Backend, cfg.Device)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks "web", "frontend" and their parents up to two levels.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "frontend", "../web", "../frontend", "../../web", "../../frontend"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}
	return ""
}
