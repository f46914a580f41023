package main

import (
	"flag"
	"log"
	"os"

	"IPHForecast/internal/di"
	"IPHForecast/pkg/config"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// a missing .env is normal outside local development
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv %s: %v", *envFile, err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("env=%s storage=%s ingestion=%s", cfg.Environment, cfg.Storage.Type, cfg.Ingestion.Backend)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT/SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
