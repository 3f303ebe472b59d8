package cmd

import (
	"context"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/logger"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/metrics/prometheus"
	"github.com/Layr-Labs/agentpay/internal/shutdown"
	"github.com/Layr-Labs/agentpay/internal/version"
	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/engine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the payment engine: indexer loop and HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		ctx := context.Background()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		l.Sugar().Infow("agentpay",
			zap.String("version", version.GetVersion()),
			zap.String("commit", version.GetCommit()),
			zap.String("chain", string(cfg.Chain)),
			zap.Int64("chainId", cfg.ChainId),
		)

		if cfg.EthereumRpcConfig.RpcUrl == "" {
			l.Sugar().Fatalf("%s is required", config.EthereumRpcUrl)
		}
		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}

		metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics sink", zap.Error(err))
		}

		sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, metricsClients)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics sink", zap.Error(err))
		}

		var promServer *prometheus.PrometheusServer
		if cfg.PrometheusConfig.Enabled {
			promServer = prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, l)
			promServer.Start()
		}

		client := ethereum.NewClient(ethereum.ConvertGlobalConfigToEthereumConfig(&cfg.EthereumRpcConfig), l)

		nodeChainId, err := client.GetChainId(ctx)
		if err != nil {
			l.Sugar().Fatalw("Failed to get chain id from node", zap.Error(err))
		}
		if int64(nodeChainId) != cfg.ChainId {
			l.Sugar().Fatalw("Node chain id does not match configured chain",
				zap.Uint64("nodeChainId", nodeChainId),
				zap.Int64("chainId", cfg.ChainId),
			)
		}

		grm, err := openMigratedDatabase(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup database", zap.Error(err))
		}

		e, err := engine.NewEngine(grm, client, sink, l, cfg)
		if err != nil {
			l.Sugar().Fatalw("Failed to build engine", zap.Error(err))
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := e.Start(ctx); err != nil {
				l.Sugar().Errorw("Engine stopped with error", zap.Error(err))
			}
		}()

		gracefulShutdownCh := shutdown.CreateGracefulShutdownChannel()
		shutdown.ListenForShutdown(gracefulShutdownCh, done, func(drainCtx context.Context) {
			l.Sugar().Infow("Shutting down...")
			select {
			case e.ShutdownChan <- true:
			case <-done:
			}
			select {
			case <-done:
			case <-drainCtx.Done():
				l.Sugar().Warnw("Engine did not stop before the grace period ended")
			}
			if err := sink.Flush(); err != nil {
				l.Sugar().Errorw("Failed to flush metrics", zap.Error(err))
			}
			if promServer != nil {
				if err := promServer.Shutdown(drainCtx); err != nil {
					l.Sugar().Errorw("Failed to stop prometheus server", zap.Error(err))
				}
			}
		}, 15*time.Second, l)
	},
}
