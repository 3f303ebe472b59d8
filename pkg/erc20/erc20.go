package erc20

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const erc20Abi = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

var (
	parsedAbi abi.ABI

	// keccak256("Transfer(address,address,uint256)")
	TransferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// first four bytes of keccak256("transfer(address,uint256)"), 0xa9059cbb
	TransferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
)

func init() {
	a, err := abi.JSON(strings.NewReader(erc20Abi))
	if err != nil {
		panic(err)
	}
	parsedAbi = a
}

// Transfer is a decoded transfer(address,uint256) call.
type Transfer struct {
	To     common.Address
	Amount *big.Int
}

func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return parsedAbi.Pack("transfer", to, amount)
}

func PackBalanceOf(account common.Address) ([]byte, error) {
	return parsedAbi.Pack("balanceOf", account)
}

func UnpackBalanceOf(data []byte) (*big.Int, error) {
	out, err := parsedAbi.Unpack("balanceOf", data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack balanceOf result")
	}
	if len(out) != 1 {
		return nil, errors.Errorf("unexpected balanceOf output length %d", len(out))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("balanceOf output is not a uint256")
	}
	return balance, nil
}

var (
	ErrNotTransferCall  = errors.New("call data is not an ERC-20 transfer")
	ErrMalformedCallArg = errors.New("call data arguments are malformed")
)

// UnpackTransfer decodes transfer call data strictly: the selector must match and the arguments must be exactly
// two canonical 32 byte words.
func UnpackTransfer(data []byte) (*Transfer, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], TransferSelector) {
		return nil, ErrNotTransferCall
	}
	args := data[4:]
	if len(args) != 64 {
		return nil, ErrMalformedCallArg
	}
	// address words are left padded with twelve zero bytes
	for _, b := range args[:12] {
		if b != 0 {
			return nil, ErrMalformedCallArg
		}
	}
	out, err := parsedAbi.Methods["transfer"].Inputs.Unpack(args)
	if err != nil {
		return nil, ErrMalformedCallArg
	}
	to, ok := out[0].(common.Address)
	if !ok {
		return nil, ErrMalformedCallArg
	}
	amount, ok := out[1].(*big.Int)
	if !ok {
		return nil, ErrMalformedCallArg
	}
	return &Transfer{To: to, Amount: amount}, nil
}

// TransferLog is a decoded Transfer(address,address,uint256) event.
type TransferLog struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// ParseTransferLog decodes the topics and data of a Transfer log.
func ParseTransferLog(topics []string, data string) (*TransferLog, error) {
	if len(topics) != 3 {
		return nil, errors.Errorf("expected 3 topics for Transfer, got %d", len(topics))
	}
	if !strings.EqualFold(topics[0], TransferEventTopic.Hex()) {
		return nil, errors.Errorf("unexpected event topic '%s'", topics[0])
	}
	raw := common.FromHex(data)
	out, err := parsedAbi.Events["Transfer"].Inputs.NonIndexed().Unpack(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack Transfer data")
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("Transfer value is not a uint256")
	}
	return &TransferLog{
		From:   common.HexToAddress(topics[1]),
		To:     common.HexToAddress(topics[2]),
		Amount: amount,
	}, nil
}
