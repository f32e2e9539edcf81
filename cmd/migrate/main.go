// Copyright 2025 James Ross
// Command migrate applies or rolls back the document-store schema via
// goose, against migrations/.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/lumensparkxy/barcode-pipeline/internal/config"
)

func main() {
	var configPath string
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	_ = fs.Parse(os.Args[1:])

	command := "up"
	args := fs.Args()
	if len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("migrate: load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("migrate: open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("migrate: ping database: %v", err)
	}

	var goosArgs []string
	if len(args) > 1 {
		goosArgs = args[1:]
	}

	fmt.Printf("running goose %s...\n", command)
	if err := goose.Run(command, db, "migrations", goosArgs...); err != nil {
		log.Fatalf("migrate: goose %s failed: %v", command, err)
	}
	fmt.Printf("goose %s completed\n", command)
}
