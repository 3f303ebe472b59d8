package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)

	return gracefulShutdown
}

// ListenForShutdown blocks until a termination signal arrives or done is closed by the caller.
// On a signal, drain is called with a context that expires after grace.
func ListenForShutdown(
	signalChan chan os.Signal,
	done <-chan struct{},
	drain func(ctx context.Context),
	grace time.Duration,
	l *zap.Logger,
) {
	select {
	case <-done:
		l.Sugar().Infow("Process finished before any shutdown signal")
		return
	case sig := <-signalChan:
		l.Sugar().Infow("Caught signal, draining", zap.String("signal", sig.String()), zap.Duration("grace", grace))

		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		drain(ctx)

		l.Sugar().Infow("Exiting")
	}
}
