package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Validate(t *testing.T) {
	t.Run("Test config is valid", func(t *testing.T) {
		assert.Nil(t, NewTestConfig().Validate())
	})
	t.Run("Reorg buffer may be one less than confirmations", func(t *testing.T) {
		cfg := NewTestConfig()
		cfg.IndexerConfig.Confirmations = 6
		cfg.IndexerConfig.ReorgBuffer = 5
		assert.Nil(t, cfg.Validate())
	})
	t.Run("Reorg buffer shorter than the confirmation depth is rejected", func(t *testing.T) {
		cfg := NewTestConfig()
		cfg.IndexerConfig.Confirmations = 12
		cfg.IndexerConfig.ReorgBuffer = 5
		err := cfg.Validate()
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), IndexerReorgBuffer)
	})
	t.Run("Zero batch size is rejected", func(t *testing.T) {
		cfg := NewTestConfig()
		cfg.IndexerConfig.BatchSize = 0
		assert.NotNil(t, cfg.Validate())
	})
	t.Run("Fresh window longer than stale window is rejected", func(t *testing.T) {
		cfg := NewTestConfig()
		cfg.HealthConfig.FreshSeconds = 700
		assert.NotNil(t, cfg.Validate())
	})
}

func Test_NewTestConfig(t *testing.T) {
	cfg := NewTestConfig()
	assert.Equal(t, int64(8453), cfg.ChainId)
	assert.Equal(t, "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", cfg.GetUsdcContractAddress())
}
