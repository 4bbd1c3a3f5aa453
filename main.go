package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carechat/internal/api"
	"carechat/internal/apperr"
	"carechat/internal/cache"
	"carechat/internal/config"
	"carechat/internal/llm"
	"carechat/internal/relay"
	"carechat/internal/storage"
	"carechat/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfgPath := os.Getenv("CARECHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	dbType := os.Getenv("CARECHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	// redis is optional: without it history reads just hit the database
	var history *cache.History
	if rdb, err := cache.NewClient(cfg); err != nil {
		logger.Warn("redis unavailable, history cache disabled", zap.Error(err))
		history = cache.NewHistory(nil, logger)
	} else {
		defer rdb.Close()
		history = cache.NewHistory(rdb, logger)
	}

	ctx := context.Background()
	var llmClient llm.Client
	if client, err := llm.NewOpenAI(ctx, cfg.OpenAI); err != nil {
		if apperr.KindOf(err) != apperr.KindConfiguration {
			logger.Fatal("init chat model", zap.Error(err))
		}
		logger.Warn("chat completion disabled", zap.Error(err))
	} else {
		llmClient = client
	}

	st := store.New(db)
	agent := llm.NewAgent(cfg.Agent, logger)
	rl := relay.New(st, logger)
	handlers := api.NewHandler(cfg, st, history, llmClient, agent, rl, logger)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	logger.Info("listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
