// cmd/agent/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/client"
	"github.com/asimov-arena/playground/internal/config"
)

func main() {
	cfg := config.LoadClient()

	logger := logrus.New()
	if cfg.APIKey == "" {
		logger.Fatal("API_KEY is required for an agent connection")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infof("playing %s as %q at %s", cfg.Game, cfg.PlayerName, cfg.BrokerURL)
	if err := client.NewAgentClient(logger, cfg).Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("agent exited: %v", err)
	}
}
