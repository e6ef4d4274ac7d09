package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/diillson/fastgate/internal/adapter/database"
	"github.com/diillson/fastgate/internal/app/route"
	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/diillson/fastgate/internal/engine/tester"
	"github.com/diillson/fastgate/internal/engine/upstream"
	"github.com/diillson/fastgate/pkg/cache"
	"github.com/diillson/fastgate/pkg/config"
	"github.com/diillson/fastgate/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		routesFile string
	)

	flag.StringVar(&configPath, "config", "./config", "Diretório do arquivo config.yaml")
	flag.StringVar(&routesFile, "routes", "", "Arquivo JSON/YAML de rotas a semear após a migração")
	flag.Parse()

	logger, err := logging.NewLogger(logging.Options{Level: "info", Format: "console"})
	if err != nil {
		fmt.Printf("Erro ao inicializar logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Falha ao carregar configuração", zap.Error(err))
	}

	ctx := context.Background()

	// migrações sempre aplicadas, independente de database.skipMigrations
	db, err := database.NewDatabase(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        database.ParseLogLevel(cfg.Database.LogLevel),
		SlowThreshold:   cfg.Database.SlowThreshold,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Falha ao inicializar banco de dados", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Migrações aplicadas com sucesso", zap.String("driver", cfg.Database.Driver))

	if routesFile == "" {
		return
	}

	inputs, err := database.NewRouteFileLoader(logger).Load(routesFile)
	if err != nil {
		logger.Fatal("Falha ao ler arquivo de rotas", zap.Error(err))
	}

	repo := database.NewRouteRepository(db.DB(), logger)
	client := upstream.NewClient(logger)
	svc := route.NewService(repo, &cache.NoOpCache{}, router.New(logger), tester.New(repo, client, logger), logger)

	applied, err := svc.Seed(ctx, inputs)
	if err != nil {
		logger.Fatal("Falha ao semear rotas", zap.Int("applied", applied), zap.Error(err))
	}
	logger.Info("Rotas semeadas", zap.Int("applied", applied), zap.Int("total", len(inputs)))
}
