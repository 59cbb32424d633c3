package main

import (
	"context"
	"flag"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"rgsons/backend/internal/config"
	pgstore "rgsons/backend/internal/store/postgres"
)

func main() {
	list := flag.Bool("list", false, "print embedded migrations and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := config.NewLogger(cfg.LogLevel)

	if *list {
		migrations, err := pgstore.Migrations()
		if err != nil {
			log.WithError(err).Fatal("load migrations")
		}
		for _, m := range migrations {
			log.WithField("checksum", m.Checksum[:12]).Info(m.Filename)
		}
		return
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("connect to postgres")
	}
	defer pool.Close()

	if err := pgstore.Migrate(ctx, pool, log); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	log.Info("database is up to date")
}
