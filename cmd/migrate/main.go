package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/migrations"
	"github.com/noah-isme/bursary-api/pkg/config"
	"github.com/noah-isme/bursary-api/pkg/database"
	"github.com/noah-isme/bursary-api/pkg/logger"
)

func main() {
	flag.Usage = func() {
		log.Printf("usage: migrate [up|down|status|reset]")
	}
	flag.Parse()
	command := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(db.DB, migrations.FS, command); err != nil {
		logr.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logr.Info("migration finished", zap.String("command", command))
}
