package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"

	"assetvault/internal/config"
	"assetvault/internal/httpserver"
	"assetvault/internal/metrics"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "passwd" {
		passwdCmd(os.Args[2:])
		return
	}

	var (
		addr     = flag.String("addr", "", "listen address (overrides config)")
		root     = flag.String("root", "", "projects root (overrides config)")
		stateDir = flag.String("state", "", "state dir for thumbnails (default: <root>/.assetvault)")
		cfgPath  = flag.String("config", "", "path to config yaml (optional)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *root != "" {
		cfg.ProjectsDir = *root
	}
	if *stateDir != "" {
		cfg.StateDir = *stateDir
	}
	if strings.TrimSpace(cfg.ProjectsDir) == "" {
		fmt.Fprintln(os.Stderr, "missing -root (or projects_dir in config)")
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	absRoot, err := filepath.Abs(cfg.ProjectsDir)
	if err != nil {
		logger.Fatal("abs root", zap.Error(err))
	}
	cfg.ProjectsDir = absRoot
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.ProjectsDir, ".assetvault")
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		logger.Fatal("mkdir state", zap.Error(err))
	}

	srv, err := httpserver.New(httpserver.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	})
	if err != nil {
		logger.Fatal("server init", zap.Error(err))
	}

	logger.Info("assetvault listening",
		zap.String("addr", cfg.Addr),
		zap.String("root", cfg.ProjectsDir),
		zap.Bool("webdav", cfg.WebDAV))
	if err := http.ListenAndServe(cfg.Addr, withHeaders(srv.Handler())); err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
}

// passwdCmd prints a bcrypt hash for an operator to place in a project's
// .passwd record.
func passwdCmd(args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	var (
		password = fs.String("p", "", "password (required)")
		cost     = fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	)
	_ = fs.Parse(args)
	if *password == "" {
		fmt.Fprintln(os.Stderr, "usage: assetvault passwd -p <password>")
		os.Exit(2)
	}
	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		fmt.Fprintf(os.Stderr, "invalid cost %d (min=%d max=%d)\n", *cost, bcrypt.MinCost, bcrypt.MaxCost)
		os.Exit(2)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bcrypt: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(h))
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Basic hardening for a LAN-facing service.
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
