package numbers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_UsdcNumbers(t *testing.T) {
	t.Run("cents to base units", func(t *testing.T) {
		assert.Equal(t, "15000000", CentsToBaseUnits(1500).String())
		assert.Equal(t, "0", CentsToBaseUnits(0).String())
	})
	t.Run("base units to cents floors", func(t *testing.T) {
		assert.Equal(t, int64(10000), BaseUnitsToCents(big.NewInt(100_000_000)))
		assert.Equal(t, int64(1), BaseUnitsToCents(big.NewInt(19_999)))
		assert.Equal(t, int64(0), BaseUnitsToCents(big.NewInt(9_999)))
		assert.Equal(t, int64(0), BaseUnitsToCents(nil))
	})
	t.Run("basis points floor", func(t *testing.T) {
		assert.Equal(t, int64(150), BpsOf(10000, 150))
		assert.Equal(t, int64(0), BpsOf(99, 100))
		assert.Equal(t, int64(1), BpsOf(199, 100))
		assert.Equal(t, int64(0), BpsOf(10000, 0))
	})
	t.Run("format", func(t *testing.T) {
		assert.Equal(t, "$15.00", FormatCents(1500))
		assert.Equal(t, "$0.05", FormatCents(5))
		assert.Equal(t, "-$2.50", FormatCents(-250))
		assert.Equal(t, "$1.23", FormatBaseUnits(big.NewInt(1_239_999)))
	})
}
