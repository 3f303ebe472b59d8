package erc20

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
)

func Test_Erc20(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	t.Run("Transfer selector and topic", func(t *testing.T) {
		assert.Equal(t, "0xa9059cbb", hexutil.Encode(TransferSelector))
		assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", TransferEventTopic.Hex())
	})
	t.Run("Pack and unpack transfer", func(t *testing.T) {
		data, err := PackTransfer(to, big.NewInt(15_000_000))
		assert.Nil(t, err)
		assert.Len(t, data, 68)

		transfer, err := UnpackTransfer(data)
		assert.Nil(t, err)
		assert.Equal(t, to, transfer.To)
		assert.Equal(t, "15000000", transfer.Amount.String())
	})
	t.Run("Rejects other selectors", func(t *testing.T) {
		data, err := PackBalanceOf(to)
		assert.Nil(t, err)
		_, err = UnpackTransfer(data)
		assert.ErrorIs(t, err, ErrNotTransferCall)
	})
	t.Run("Rejects trailing bytes", func(t *testing.T) {
		data, _ := PackTransfer(to, big.NewInt(1))
		_, err := UnpackTransfer(append(data, 0x00))
		assert.ErrorIs(t, err, ErrMalformedCallArg)
	})
	t.Run("Rejects dirty address padding", func(t *testing.T) {
		data, _ := PackTransfer(to, big.NewInt(1))
		data[4] = 0x01
		_, err := UnpackTransfer(data)
		assert.ErrorIs(t, err, ErrMalformedCallArg)
	})
	t.Run("Unpack balanceOf", func(t *testing.T) {
		word := common.LeftPadBytes(big.NewInt(100_000_000).Bytes(), 32)
		balance, err := UnpackBalanceOf(word)
		assert.Nil(t, err)
		assert.Equal(t, "100000000", balance.String())
	})
	t.Run("Parse transfer log", func(t *testing.T) {
		from := common.HexToAddress("0x00000000000000000000000000000000000000bb")
		topics := []string{
			TransferEventTopic.Hex(),
			common.BytesToHash(from.Bytes()).Hex(),
			common.BytesToHash(to.Bytes()).Hex(),
		}
		data := hexutil.Encode(common.LeftPadBytes(big.NewInt(2_500_000).Bytes(), 32))

		parsed, err := ParseTransferLog(topics, data)
		assert.Nil(t, err)
		assert.Equal(t, from, parsed.From)
		assert.Equal(t, to, parsed.To)
		assert.Equal(t, "2500000", parsed.Amount.String())

		_, err = ParseTransferLog(topics[:2], data)
		assert.NotNil(t, err)
	})
}
