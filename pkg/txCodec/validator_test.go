package txCodec

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/agentpay/pkg/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func testExpectation() *Expectation {
	return &Expectation{
		ChainId:      8453,
		TokenAddress: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		To:           "0x00000000000000000000000000000000000000BB",
		AmountCents:  1500,
	}
}

func Test_ValidateSignedTransaction(t *testing.T) {
	t.Run("Matching transfers pass for every encoding", func(t *testing.T) {
		for _, txType := range []byte{types.LegacyTxType, types.AccessListTxType, types.DynamicFeeTxType} {
			signed, raw := signTx(t, defaultTxOptions(t, txType))

			res := ValidateSignedTransaction(hexutil.Encode(raw), testExpectation())
			assert.True(t, res.Valid, res.Reason)
			assert.Equal(t, signed.Hash(), res.Tx.Hash)
		}
	})
	t.Run("Legacy without chain id skips the chain check", func(t *testing.T) {
		opts := defaultTxOptions(t, types.LegacyTxType)
		opts.chainId = nil
		_, raw := signTx(t, opts)

		res := ValidateSignedTransaction(hexutil.Encode(raw), testExpectation())
		assert.True(t, res.Valid, res.Reason)
	})

	approveData := append(common.FromHex("0x095ea7b3"), make([]byte, 64)...)
	wrongDestination, _ := erc20.PackTransfer(common.HexToAddress("0x00000000000000000000000000000000000000cc"), big.NewInt(15_000_000))
	wrongAmount, _ := erc20.PackTransfer(testDestination, big.NewInt(15_000_001))

	cases := []struct {
		name   string
		mutate func(o *txOptions)
		reason string
	}{
		{"Non-zero native value", func(o *txOptions) { o.value = big.NewInt(1) }, Reason_NonZeroValue},
		{"Wrong contract", func(o *txOptions) { o.to = testDestination }, Reason_WrongContract},
		{"Wrong chain", func(o *txOptions) { o.chainId = big.NewInt(1) }, Reason_ChainIdMismatch},
		{"Not a transfer call", func(o *txOptions) { o.data = approveData }, Reason_NotTransferCall},
		{"Empty call data", func(o *txOptions) { o.data = nil }, Reason_NotTransferCall},
		{"Destination mismatch", func(o *txOptions) { o.data = wrongDestination }, Reason_DestinationMismatch},
		{"Amount mismatch", func(o *txOptions) { o.data = wrongAmount }, Reason_AmountMismatch},
	}
	for _, c := range cases {
		for _, txType := range []byte{types.LegacyTxType, types.DynamicFeeTxType} {
			t.Run(c.name, func(t *testing.T) {
				opts := defaultTxOptions(t, txType)
				c.mutate(opts)
				_, raw := signTx(t, opts)

				res := ValidateSignedTransaction(hexutil.Encode(raw), testExpectation())
				assert.False(t, res.Valid)
				assert.Equal(t, c.reason, res.Reason)
			})
		}
	}

	t.Run("Malformed payloads", func(t *testing.T) {
		for _, payload := range []string{"", "0x", "not-hex", "0xc0", "0x02c0"} {
			res := ValidateSignedTransaction(payload, testExpectation())
			assert.False(t, res.Valid)
			assert.Equal(t, Reason_MalformedTransaction, res.Reason, payload)
		}
	})
	t.Run("Unsupported type", func(t *testing.T) {
		res := ValidateSignedTransaction("0x03c0", testExpectation())
		assert.False(t, res.Valid)
		assert.Equal(t, Reason_UnsupportedType, res.Reason)
	})
	t.Run("Amount of an intent that cannot be positive", func(t *testing.T) {
		_, raw := signTx(t, defaultTxOptions(t, types.DynamicFeeTxType))
		expected := testExpectation()
		expected.AmountCents = 0

		res := ValidateSignedTransaction(hexutil.Encode(raw), expected)
		assert.Equal(t, Reason_AmountMismatch, res.Reason)
	})
}
