// Command requeue-videos enqueues a processing job for every video left in
// processing, for example after restoring a database without its job table.
package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/kelseyhightower/envconfig"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vidpipe/internal/workers"
)

type Config struct {
	DBURL string `envconfig:"DB_URL" default:"host=localhost user=user password=pass dbname=vidpipe port=5432 sslmode=disable"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	log.Println("Requeueing videos stuck in processing...")

	pgxConfig, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}
	dbPool, err := pgxpool.NewWithConfig(context.Background(), pgxConfig)
	if err != nil {
		log.Fatal("Failed to create database pool:", err)
	}
	defer dbPool.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: stdlib.OpenDBFromPool(dbPool),
	}), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to initialize GORM with shared pool:", err)
	}

	// Insert-only client; the server's client does the work.
	riverClient, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{})
	if err != nil {
		log.Fatal("Failed to create River client:", err)
	}

	queued, err := workers.NewRiverQueueManager(riverClient, db).RequeueProcessing(context.Background())
	if err != nil {
		log.Fatalf("Requeue stopped after %d videos: %v", queued, err)
	}
	log.Printf("Requeue completed: %d videos submitted", queued)
}
