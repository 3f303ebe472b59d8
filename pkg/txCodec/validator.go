package txCodec

import (
	"github.com/Layr-Labs/agentpay/pkg/erc20"
	"github.com/Layr-Labs/agentpay/pkg/types/numbers"
	"github.com/Layr-Labs/agentpay/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const (
	Reason_MalformedTransaction = "Malformed signed transaction"
	Reason_UnsupportedType      = "Unsupported transaction type"
	Reason_NonZeroValue         = "Transaction must not transfer native value"
	Reason_WrongContract        = "Transaction does not target the USDC contract"
	Reason_ChainIdMismatch      = "Transaction chain id does not match"
	Reason_NotTransferCall      = "Call data is not an ERC-20 transfer"
	Reason_DestinationMismatch  = "Transfer destination does not match the intent"
	Reason_AmountMismatch       = "Transfer amount does not match the intent"
)

// Expectation is the approved intent a signed transaction must carry out.
type Expectation struct {
	ChainId      int64
	TokenAddress string
	To           string
	AmountCents  int64
}

type ValidationResult struct {
	Valid  bool
	Reason string
	Tx     *Transaction
}

func reject(reason string, tx *Transaction) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason, Tx: tx}
}

// ValidateSignedTransaction decodes a hex signed transaction and checks it against the approved intent.
// The first mismatch found is returned as the reason.
func ValidateSignedTransaction(payload string, expected *Expectation) *ValidationResult {
	tx, err := DecodeHex(payload)
	if err != nil {
		if errors.Is(err, ErrUnsupportedTxType) {
			return reject(Reason_UnsupportedType, nil)
		}
		return reject(Reason_MalformedTransaction, nil)
	}
	return ValidateTransaction(tx, expected)
}

func ValidateTransaction(tx *Transaction, expected *Expectation) *ValidationResult {
	if !tx.Value.IsZero() {
		return reject(Reason_NonZeroValue, tx)
	}
	if tx.To == nil || !utils.AreAddressesEqual(tx.To.Hex(), expected.TokenAddress) {
		return reject(Reason_WrongContract, tx)
	}
	if tx.ChainId != nil && (expected.ChainId < 0 || !tx.ChainId.Eq(uint256.NewInt(uint64(expected.ChainId)))) {
		return reject(Reason_ChainIdMismatch, tx)
	}

	transfer, err := erc20.UnpackTransfer(tx.Data)
	if err != nil {
		return reject(Reason_NotTransferCall, tx)
	}

	destination := utils.NormalizeAddress(expected.To)
	if destination == "" || transfer.To != common.HexToAddress(destination) {
		return reject(Reason_DestinationMismatch, tx)
	}

	if expected.AmountCents <= 0 {
		return reject(Reason_AmountMismatch, tx)
	}
	amount, overflow := uint256.FromBig(transfer.Amount)
	if overflow || !amount.Eq(expectedBaseUnits(expected.AmountCents)) {
		return reject(Reason_AmountMismatch, tx)
	}

	return &ValidationResult{Valid: true, Tx: tx}
}

func expectedBaseUnits(cents int64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(uint64(cents)), uint256.NewInt(numbers.BaseUnitsPerCent))
}
