package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const dest = "0x00000000000000000000000000000000000000aa"

func baseScopes() *Scopes {
	return &Scopes{PerTxLimitCents: 2000, DailyLimitCents: 5000}
}

func sendIntent(amount int64) Intent {
	return Intent{Type: "send_usdc", To: dest, AmountCents: amount}
}

func Test_Evaluate(t *testing.T) {
	t.Run("Allows within limits", func(t *testing.T) {
		d := Evaluate(sendIntent(1500), baseScopes(), 100_000, 0)
		assert.True(t, d.Allowed)
		assert.False(t, d.RequiresStepUp)
	})
	t.Run("Denies when the daily limit would be exceeded", func(t *testing.T) {
		d := Evaluate(sendIntent(1500), baseScopes(), 100_000, 4000)
		assert.False(t, d.Allowed)
		assert.Equal(t, "Daily limit exceeded", d.Reason)
	})
	t.Run("Daily limit is inclusive", func(t *testing.T) {
		d := Evaluate(sendIntent(1000), baseScopes(), 100_000, 4000)
		assert.True(t, d.Allowed)
	})
	t.Run("Rejects other intent types", func(t *testing.T) {
		d := Evaluate(Intent{Type: "swap", To: dest, AmountCents: 1}, baseScopes(), 100, 0)
		assert.Equal(t, Reason_UnsupportedIntent, d.Reason)
	})
	t.Run("Rejects non-positive amounts", func(t *testing.T) {
		assert.Equal(t, Reason_InvalidAmount, Evaluate(sendIntent(0), baseScopes(), 100, 0).Reason)
		assert.Equal(t, Reason_InvalidAmount, Evaluate(sendIntent(-5), baseScopes(), 100, 0).Reason)
	})
	t.Run("Rejects malformed destinations", func(t *testing.T) {
		d := Evaluate(Intent{Type: "send_usdc", To: "not-an-address", AmountCents: 1}, baseScopes(), 100, 0)
		assert.Equal(t, Reason_InvalidDestination, d.Reason)
	})
	t.Run("Blocklist is checked before allowlist and is case insensitive", func(t *testing.T) {
		s := baseScopes()
		s.Blocklist = []string{"0x00000000000000000000000000000000000000AA"}
		s.Allowlist = []string{dest}
		assert.Equal(t, Reason_Blocklisted, Evaluate(sendIntent(100), s, 10_000, 0).Reason)
	})
	t.Run("Non-empty allowlist must contain the destination", func(t *testing.T) {
		s := baseScopes()
		s.Allowlist = []string{"0x00000000000000000000000000000000000000bb"}
		assert.Equal(t, Reason_NotAllowlisted, Evaluate(sendIntent(100), s, 10_000, 0).Reason)
	})
	t.Run("Per transaction limit", func(t *testing.T) {
		assert.Equal(t, Reason_PerTxLimitExceeded, Evaluate(sendIntent(2001), baseScopes(), 100_000, 0).Reason)
	})
	t.Run("Spend power", func(t *testing.T) {
		assert.Equal(t, Reason_InsufficientSpend, Evaluate(sendIntent(1500), baseScopes(), 1499, 0).Reason)
		assert.True(t, Evaluate(sendIntent(1500), baseScopes(), 1500, 0).Allowed)
	})
	t.Run("Step up at or above the threshold", func(t *testing.T) {
		s := baseScopes()
		threshold := int64(1000)
		s.StepUpThresholdCents = &threshold

		d := Evaluate(sendIntent(1000), s, 100_000, 0)
		assert.True(t, d.Allowed)
		assert.True(t, d.RequiresStepUp)

		d = Evaluate(sendIntent(999), s, 100_000, 0)
		assert.True(t, d.Allowed)
		assert.False(t, d.RequiresStepUp)
	})
	t.Run("Missing scopes fail closed", func(t *testing.T) {
		assert.Equal(t, Reason_InvalidScopes, Evaluate(sendIntent(1), nil, 100, 0).Reason)
	})
}

func Test_ParseScopes(t *testing.T) {
	s, ok := ParseScopes(`{"per_tx_limit_cents":2000,"daily_limit_cents":5000,"allowlist":["0x00000000000000000000000000000000000000aa"],"step_up_threshold_cents":1000}`)
	assert.True(t, ok)
	assert.Equal(t, int64(2000), s.PerTxLimitCents)
	assert.Equal(t, int64(1000), *s.StepUpThresholdCents)
	assert.Len(t, s.Allowlist, 1)

	_, ok = ParseScopes(`{"per_tx_limit_cents":2000}`)
	assert.False(t, ok)

	_, ok = ParseScopes(`not json`)
	assert.False(t, ok)
}
