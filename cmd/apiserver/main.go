// Command apiserver runs only the HTTP API, for container images that do not
// need the operator commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/interfaces/cli"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cli.Version = version

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise application", logging.Err(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error("server exited with error", logging.Err(err))
		stop()
		app.Close()
		os.Exit(1)
	}
}
