package cmd

import (
	"context"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/logger"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/engine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single indexer pass and exit",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		if cfg.EthereumRpcConfig.RpcUrl == "" {
			l.Sugar().Fatalf("%s is required", config.EthereumRpcUrl)
		}
		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}

		client := ethereum.NewClient(ethereum.ConvertGlobalConfigToEthereumConfig(&cfg.EthereumRpcConfig), l)

		grm, err := openMigratedDatabase(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup database", zap.Error(err))
		}

		e, err := engine.NewEngine(grm, client, metrics.NewNoopMetricsSink(), l, cfg)
		if err != nil {
			l.Sugar().Fatalw("Failed to build engine", zap.Error(err))
		}

		result, err := e.Indexer.Tick(context.Background())
		if err != nil {
			l.Sugar().Fatalw("Indexer tick failed", zap.Error(err))
		}
		l.Sugar().Infow("Indexer tick complete",
			zap.Uint64("head", result.Head),
			zap.Uint64("fromBlock", result.FromBlock),
			zap.Int("logsSeen", result.LogsSeen),
			zap.Int("transfersUpserted", result.TransfersUpserted),
			zap.Int("eventsProcessed", result.EventsProcessed),
			zap.Int("executionsReconciled", result.ExecutionsReconciled),
		)
	},
}
