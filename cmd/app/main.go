package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"ProbDesk/internal/di"
	"ProbDesk/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *checkOnly {
		fmt.Printf("config ok: %s\n", *configPath)
		return
	}

	log.Printf("env=%s sink=%s cache=%s upstream=%s kafka_consumer=%t collector=%t",
		cfg.Environment, cfg.Sink.Type, cfg.Cache.Type, cfg.Relay.UpstreamBase,
		cfg.Kafka.Consumer.Enabled, cfg.Collector.Enabled)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT or SIGTERM
	err = app.Run()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
