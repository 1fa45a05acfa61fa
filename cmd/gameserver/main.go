// cmd/gameserver/main.go
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
	if cfg.Token == "" {
		logger.Fatal("ARENA_TOKEN is required for a game server connection")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infof("hosting %s rooms at %s", cfg.Game, cfg.BrokerURL)
	if err := client.NewGameServerClient(logger, cfg).Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("game server exited: %v", err)
	}
}
