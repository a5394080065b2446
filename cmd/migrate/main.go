package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/migrations"
)

// Standalone migration runner for the postgres backend. The server applies
// migrations on startup; this exists for operators who migrate separately.
func main() {
	dsn := flag.String("dsn", os.Getenv("AIGW_POSTGRES_DSN"), "postgres DSN")
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	version := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("a postgres DSN is required (-dsn or AIGW_POSTGRES_DSN)")
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.WithError(err).Fatal("open postgres")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.WithError(err).Fatal("ping postgres")
	}

	switch {
	case *version:
		v, dirty, err := migrations.PostgresVersion(db)
		if err != nil {
			log.WithError(err).Fatal("read schema version")
		}
		fmt.Printf("version=%d dirty=%v\n", v, dirty)

	case *down > 0:
		if err := migrations.PostgresDown(db, *down); err != nil {
			log.WithError(err).Fatal("migrate down")
		}
		log.WithField("steps", *down).Info("rolled back")

	default:
		if err := migrations.PostgresUp(db); err != nil {
			log.WithError(err).Fatal("migrate up")
		}
		log.Info("schema up to date")
	}
}
