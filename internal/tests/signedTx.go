package tests

import (
	"math/big"

	"github.com/Layr-Labs/agentpay/pkg/erc20"
	"github.com/Layr-Labs/agentpay/pkg/types/numbers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testSignerKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// UsdcTransfer describes a signed EIP-1559 USDC transfer for tests.
type UsdcTransfer struct {
	ChainId     int64
	Token       string
	To          string
	AmountCents int64
	// native value in wei, normally zero
	Value int64
}

// SignUsdcTransfer signs the transfer with a fixed test key and returns the 0x-prefixed network encoding.
func SignUsdcTransfer(transfer UsdcTransfer) (string, error) {
	key, err := crypto.HexToECDSA(testSignerKey)
	if err != nil {
		return "", err
	}
	data, err := erc20.PackTransfer(common.HexToAddress(transfer.To), numbers.CentsToBaseUnits(transfer.AmountCents))
	if err != nil {
		return "", err
	}

	chainId := big.NewInt(transfer.ChainId)
	token := common.HexToAddress(transfer.Token)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainId,
		Nonce:     1,
		GasTipCap: big.NewInt(1_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       65_000,
		To:        &token,
		Value:     big.NewInt(transfer.Value),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.NewLondonSigner(chainId), key)
	if err != nil {
		return "", err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(raw), nil
}
