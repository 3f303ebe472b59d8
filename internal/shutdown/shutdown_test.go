package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/Layr-Labs/agentpay/internal/tests"
	"github.com/stretchr/testify/assert"
)

func Test_ListenForShutdown(t *testing.T) {
	l := tests.GetLogger()

	t.Run("Signal runs drain with a bounded context", func(t *testing.T) {
		signals := make(chan os.Signal, 1)
		signals <- syscall.SIGTERM

		drained := false
		ListenForShutdown(signals, make(chan struct{}), func(ctx context.Context) {
			drained = true
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
		}, time.Second, l)

		assert.True(t, drained)
	})
	t.Run("Closing done returns without draining", func(t *testing.T) {
		done := make(chan struct{})
		close(done)

		drained := false
		ListenForShutdown(make(chan os.Signal, 1), done, func(ctx context.Context) {
			drained = true
		}, time.Second, l)

		assert.False(t, drained)
	})
}
