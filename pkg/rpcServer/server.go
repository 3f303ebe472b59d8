package rpcServer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/agentpay/pkg/orchestrator"
	"github.com/Layr-Labs/agentpay/pkg/spendPower"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Orchestrator interface {
	CanAct(ctx context.Context, req *orchestrator.CanActRequest) (*orchestrator.CanActResponse, error)
	Execute(ctx context.Context, req *orchestrator.ExecuteRequest) (*orchestrator.ExecuteResponse, error)
	FreezeUser(ctx context.Context, userId string, frozen bool, reason string) (*storage.UserFlags, error)
	RevokeAgent(ctx context.Context, userId string, agentId string) (bool, error)
	ListReceipts(ctx context.Context, userId string, limit int) ([]*storage.Receipt, error)
	RegisterWallet(ctx context.Context, userId string, address string) (*storage.Wallet, error)
	CreateAgent(ctx context.Context, userId string, scopesJson string) (*storage.AgentToken, error)
	SpendPower(ctx context.Context, userId string) (*spendPower.Breakdown, error)
}

type HealthReader interface {
	Freshness() (string, error)
	Status() (*storage.RpcHealth, error)
}

type RpcServer struct {
	Logger       *zap.Logger
	orchestrator Orchestrator
	health       HealthReader
	eventBus     eventBusTypes.IEventBus
	metricsSink  *metrics.MetricsSink
	globalConfig *config.Config
}

func NewRpcServer(
	o Orchestrator,
	h HealthReader,
	eb eventBusTypes.IEventBus,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *RpcServer {
	return &RpcServer{
		Logger:       l,
		orchestrator: o,
		health:       h,
		eventBus:     eb,
		metricsSink:  ms,
		globalConfig: cfg,
	}
}

func (rpc *RpcServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rpc.instrument)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", rpc.healthCheck)
		r.Get("/ready", rpc.readyCheck)

		r.Post("/agent/can-act", rpc.canAct)
		r.Post("/agent/execute", rpc.execute)

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Post("/freeze", rpc.freezeUser)
			r.Post("/wallet", rpc.registerWallet)
			r.Post("/agents", rpc.createAgent)
			r.Post("/agents/{agentId}/revoke", rpc.revokeAgent)
			r.Get("/receipts", rpc.listReceipts)
			r.Get("/receipts/stream", rpc.streamReceipts)
			r.Get("/spend-power", rpc.getSpendPower)
		})
	})
	return r
}

// Serve runs the HTTP API until ctx is canceled, then drains in-flight requests.
func (rpc *RpcServer) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           rpc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rpc.Logger.Sugar().Infow("Starting HTTP API", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "HTTP API stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rpc.Logger.Sugar().Infow("Shutting down HTTP API")
	return srv.Shutdown(shutdownCtx)
}
