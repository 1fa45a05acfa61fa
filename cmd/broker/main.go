// cmd/broker/main.go
package main

import (
	"context"
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/auth"
	"github.com/asimov-arena/playground/internal/broker"
	"github.com/asimov-arena/playground/internal/config"
	"github.com/asimov-arena/playground/internal/database"
	"github.com/asimov-arena/playground/internal/handlers"
	"github.com/asimov-arena/playground/internal/tournament"
)

func main() {
	cfg := config.LoadBroker()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	auth.Init()
	// The signing keys are generated per process, so an engine credential
	// minted here only works against this broker instance.
	token, err := auth.CreateToken(auth.Principal{ID: "operator", Role: auth.RoleOperator})
	if err != nil {
		log.Fatalf("could not mint operator token: %v", err)
	}
	logger.Infof("operator token: %s", token)

	// Persistence is best effort: without a database the broker simply
	// keeps everything in memory.
	var rec broker.Recorder
	var persist *database.Store
	bots := auth.NewBotRegistry()
	store, err := database.Connect(context.Background())
	if err != nil {
		logger.Warnf("running without persistence: %v", err)
	} else {
		rec = store
		persist = store
		defer store.Close()
		saved, err := store.ListBots(context.Background())
		if err != nil {
			logger.Warnf("could not restore bots: %v", err)
		}
		for i := range saved {
			bots.Restore(&saved[i])
		}
		logger.Infof("restored %d bots", len(saved))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	queue := tournament.NewQueue(rdb)

	b := broker.New(logger, rec)
	api := &handlers.APIServer{
		Log:         logger,
		Broker:      b,
		Bots:        bots,
		Tournaments: tournament.NewManager(logger, queue),
		Store:       persist,
	}

	logger.Infof("arena broker listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, api.Routes()); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
