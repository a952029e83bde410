package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/username/chatkit/internal/adapters/storage/sqlite"
	"github.com/username/chatkit/internal/pkg/logutil"
	"github.com/username/chatkit/pkg/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logutil.Fatal("failed to load configuration", logutil.Fields{"error": err.Error()})
	}

	logutil.Info("running migrations", logutil.Fields{"database": cfg.Database.Path})

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logutil.Fatal("failed to create database directory", logutil.Fields{"error": err.Error()})
	}

	storage, err := sqlite.NewAdapter(cfg.Database.Path, cfg.Database.MigrationsPath)
	if err != nil {
		logutil.Fatal("failed to initialize storage", logutil.Fields{"error": err.Error()})
	}
	defer storage.Close()

	if err := storage.Migrate(context.Background()); err != nil {
		logutil.Fatal("migration failed", logutil.Fields{"error": err.Error()})
	}

	logutil.Info("migrations completed")
}
