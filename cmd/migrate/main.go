// Command migrate applies or rolls back database migrations.
//
//	migrate up
//	migrate down
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"auth-service/internal/config"
	"auth-service/internal/db/migrate"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [up|down]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	direction := "up"
	if flag.NArg() > 0 {
		direction = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := migrate.Run(cfg.DatabaseURL, direction); err != nil {
		log.Fatalf("migrate %s: %v", direction, err)
	}
	log.Printf("migrations %s complete", direction)
}
