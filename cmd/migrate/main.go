package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/pkg/config"
	"github.com/noah-isme/gpa-tracker-api/pkg/database"
	"github.com/noah-isme/gpa-tracker-api/pkg/logger"
	"github.com/noah-isme/gpa-tracker-api/pkg/migrations"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate <command> [args]\ncommands: %s\n", strings.Join(migrations.Commands, ", "))
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	command := flag.Arg(0)
	if err := migrations.Run(context.Background(), db.DB, command, flag.Args()[1:]...); err != nil {
		logr.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logr.Info("migration finished", zap.String("command", command))
}
