package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/nastyazhadan/paper-exchange/internal/app/engine"
	"github.com/nastyazhadan/paper-exchange/shared/config"
	"github.com/nastyazhadan/paper-exchange/shared/infra/health"
)

func main() {
	envPath := flag.String("env", ".env", "optional dotenv file")
	healthcheck := flag.Bool("healthcheck", false, "probe a running engine and exit")
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Fatal(err)
	}

	if *healthcheck {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := health.Probe(ctx, probeAddress(cfg.HealthAddress)); err != nil {
			log.Fatal(err)
		}
		return
	}

	engine.Run(context.Background(), cfg)
}

// probeAddress turns a listen address like ":50061" into a dialable one.
func probeAddress(address string) string {
	if len(address) > 0 && address[0] == ':' {
		return "127.0.0.1" + address
	}
	return address
}
