// Command migrate applies the schema migrations and optionally seeds the
// ayah corpus from a JSON file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/config"
	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/database"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	seedPath := flag.String("seed-corpus", "", "JSON file with the ayah corpus to seed after migrating")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	// Migration runs explicitly here, never on open.
	cfg.Database.AutoMigrate = false

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db.DB); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
	logger.Info("migrations applied")

	if *seedPath == "" {
		return
	}

	raw, err := os.ReadFile(*seedPath)
	if err != nil {
		logger.Fatal("read seed file", zap.Error(err))
	}
	var ayahs []core.Ayah
	if err := json.Unmarshal(raw, &ayahs); err != nil {
		logger.Fatal("parse seed file", zap.Error(err))
	}

	store := database.NewStore(db, logger)
	inserted, err := store.SeedAyahs(context.Background(), ayahs)
	if err != nil {
		logger.Fatal("seed corpus", zap.Error(err))
	}
	logger.Info("corpus seeded",
		zap.Int("rows_in_file", len(ayahs)),
		zap.Int("rows_inserted", inserted))
}
