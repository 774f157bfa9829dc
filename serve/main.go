// Command genform serves a text-generation model through a single-page form.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	genform "github.com/Paranoid-AF/genform"
	"github.com/Paranoid-AF/genform/generate"
	"github.com/Paranoid-AF/genform/metrics"
	"github.com/Paranoid-AF/genform/notify"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request to stderr")
	configPath := flag.String("config", genform.ConfigPath(), "path to config.toml")
	addr := flag.String("addr", "", "listen address (overrides config)")
	preload := flag.Bool("preload", false, "load the model before accepting requests")
	flag.Parse()

	if *showVersion {
		fmt.Println("genform", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := genform.LoadConfigFile(*configPath)
	if err != nil {
		slog.Warn("failed to load config, using defaults", "path", *configPath, "error", err)
		cfg = genform.DefaultConfig()
	}
	for _, w := range genform.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	listen := *addr
	if listen == "" {
		listen = genform.ResolveAddr(cfg)
	}

	prom := metrics.NewProm("genform")
	loader := generate.NewLoader(cfg, prom)
	cache := generate.NewCache(loader)
	responder := generate.NewResponder(cfg, prom)
	srv := NewServer(listen, loader.Model, cache, responder, prom)

	if *preload {
		cache.Get(context.Background(), notify.Log{})
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigCh
		slog.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("ready", "addr", listen, "model", loader.Model)
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
}
