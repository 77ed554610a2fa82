package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"collabchat/internal/config"
	"collabchat/internal/constants"
	"collabchat/internal/database"
	"collabchat/internal/migrations"
	"collabchat/internal/models"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	driver := flag.String("driver", "", "Override database.driver (sqlite3 or postgres)")
	dbPath := flag.String("db", "", "Override database.path for sqlite3")
	dbURL := flag.String("url", "", "Override database.url for postgres")
	printOnly := flag.Bool("print", false, "Print the schema for the selected driver and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(&cfg.Database, *driver, *dbPath, *dbURL)

	if *printOnly {
		if err := printSchema(os.Stdout, cfg.Database.Driver); err != nil {
			logger.Fatal(err)
		}
		return
	}

	if err := apply(ctx, cfg.Database, logger); err != nil {
		logger.Fatal(err)
	}
}

// applyOverrides lets flags take precedence over the config file
func applyOverrides(cfg *models.DatabaseConfig, driver, path, url string) {
	if driver != "" {
		cfg.Driver = driver
	}
	if path != "" {
		cfg.Path = path
	}
	if url != "" {
		cfg.URL = url
	}
}

func printSchema(w io.Writer, driver string) error {
	if driver == "" {
		driver = constants.DialectSQLite
	}
	schema, err := migrations.GetInitialSchema(driver)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	_, err = fmt.Fprintln(w, schema)
	return err
}

// apply opens the store, which creates any missing tables and indexes.
// The schema statements are idempotent, so running it twice is safe.
func apply(ctx context.Context, cfg models.DatabaseConfig, logger *logrus.Logger) error {
	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	defer db.Close()

	logger.WithField("driver", db.Dialect()).Info("Schema is up to date")
	return nil
}
