// Command server runs the Antigravity gateway: an OpenAI and Anthropic
// compatible front door over the upstream generate-content API with a
// rotating credential pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/api"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/auth/antigravity"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/buildinfo"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/config"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/logging"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/runtime/executor"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/watcher"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the YAML configuration file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("antigravity-gateway %s (%s, built %s)\n",
			buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	logging.SetupBaseLogger()
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	warnings, err := config.ValidateConfig(cfg)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	for _, warning := range warnings {
		log.Warn(warning)
	}
	logging.SetLogLevel(cfg)
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}

	client, err := upstreamClient(cfg)
	if err != nil {
		log.Fatalf("invalid upstream proxy settings: %v", err)
	}

	credsFile := cfg.Credentials.File
	if credsFile == "" {
		credsFile = antigravity.DefaultCredentialsPath()
	}
	store := antigravity.NewStore(credsFile, cfg.CredsCacheInterval())
	refresher := antigravity.NewRefresher(store, nil)
	pool := antigravity.NewPoolManager(store, refresher, antigravity.PoolOptions{
		CacheInterval:     cfg.CredsCacheInterval(),
		GenericCooldown:   cfg.Cooldown.GenericCooldown(),
		AuthCooldown:      cfg.Cooldown.AuthCooldown(),
		RateLimitCooldown: cfg.Cooldown.RateLimitCooldown(),
	})
	exec := executor.New(pool, executor.Options{
		BaseURL:         cfg.Upstream.BaseURL,
		ReadIdleTimeout: cfg.Upstream.ReadIdleTimeout(),
		Client:          client,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher.WatchIfPresent(ctx, credsFile, func() {
		log.Info("credential file changed, invalidating pool cache")
		pool.Invalidate()
	})

	server := api.NewServer(cfg, pool, exec)
	httpServer := &http.Server{
		Addr:    server.Addr(),
		Handler: server.Handler(),
	}

	go func() {
		log.Infof("antigravity-gateway %s listening on %s (%d eligible credentials)",
			buildinfo.Version, httpServer.Addr, pool.EligibleCount())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown did not complete cleanly: %v", err)
	}
}

// upstreamClient builds the shared HTTP client, honoring the optional proxy
// configuration. No overall timeout: streaming responses are bounded by the
// executor's read-idle timer instead.
func upstreamClient(cfg *config.Config) (*http.Client, error) {
	transport := &http.Transport{
		ResponseHeaderTimeout: cfg.Upstream.ReadIdleTimeout(),
	}
	if cfg.Upstream.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.Upstream.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy-url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Transport: transport}, nil
}
