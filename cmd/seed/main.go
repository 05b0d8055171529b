package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/repository"
	"github.com/noah-isme/gpa-tracker-api/internal/seed"
	"github.com/noah-isme/gpa-tracker-api/pkg/config"
	"github.com/noah-isme/gpa-tracker-api/pkg/database"
	"github.com/noah-isme/gpa-tracker-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	file := flag.String("file", cfg.Seed.DegreesFile, "degree catalogue (YAML)")
	skipAdmin := flag.Bool("skip-admin", false, "do not create the superadmin account")
	flag.Parse()

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	cat, err := seed.LoadFile(*file)
	if err != nil {
		logr.Fatal("failed to load catalogue", zap.String("file", *file), zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	admin := seed.SuperAdmin{
		Email:    cfg.Seed.SuperAdminEmail,
		Username: cfg.Seed.SuperAdminUsername,
		Password: cfg.Seed.SuperAdminPassword,
	}
	if *skipAdmin {
		admin = seed.SuperAdmin{}
	}

	seeder := seed.NewSeeder(repository.NewDegreeRepository(db), repository.NewUserRepository(db), logr)
	res, err := seeder.Run(context.Background(), cat, admin)
	if err != nil {
		logr.Fatal("seeding failed", zap.Error(err))
	}
	logr.Info("seeding finished",
		zap.Int("degrees_created", res.DegreesCreated),
		zap.Int("degrees_skipped", res.DegreesSkipped),
		zap.Bool("superadmin_created", res.AdminCreated),
	)
}
