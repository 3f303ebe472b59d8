package ethereum

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

type (
	EthereumHexString   string
	EthereumQuantity    uint64
	EthereumBigQuantity big.Int
)

type (
	// EthereumBlockHeader is the subset of eth_getBlockByNumber (without transactions) the engine reads.
	EthereumBlockHeader struct {
		Hash       EthereumHexString `json:"hash"`
		ParentHash EthereumHexString `json:"parentHash"`
		Number     EthereumQuantity  `json:"number"`
		Timestamp  EthereumQuantity  `json:"timestamp"`
	}

	EthereumTransactionReceipt struct {
		TransactionHash   EthereumHexString   `json:"transactionHash"`
		TransactionIndex  EthereumQuantity    `json:"transactionIndex"`
		BlockHash         EthereumHexString   `json:"blockHash"`
		BlockNumber       EthereumQuantity    `json:"blockNumber"`
		From              EthereumHexString   `json:"from"`
		To                EthereumHexString   `json:"to"`
		CumulativeGasUsed EthereumQuantity    `json:"cumulativeGasUsed"`
		GasUsed           EthereumQuantity    `json:"gasUsed"`
		Logs              []*EthereumEventLog `json:"logs"`
		Status            *EthereumQuantity   `json:"status"`
		Type              EthereumQuantity    `json:"type"`
	}

	EthereumEventLog struct {
		Removed          bool                `json:"removed"`
		LogIndex         EthereumQuantity    `json:"logIndex"`
		TransactionHash  EthereumHexString   `json:"transactionHash"`
		TransactionIndex EthereumQuantity    `json:"transactionIndex"`
		BlockHash        EthereumHexString   `json:"blockHash"`
		BlockNumber      EthereumQuantity    `json:"blockNumber"`
		Address          EthereumHexString   `json:"address"`
		Data             EthereumHexString   `json:"data"`
		Topics           []EthereumHexString `json:"topics"`
	}

	// EthereumLogFilter is the eth_getLogs filter object.
	EthereumLogFilter struct {
		FromBlock EthereumQuantity    `json:"fromBlock"`
		ToBlock   EthereumQuantity    `json:"toBlock"`
		Address   EthereumHexString   `json:"address"`
		Topics    []EthereumHexString `json:"topics,omitempty"`
	}

	// EthereumCallMsg is the eth_call transaction object.
	EthereumCallMsg struct {
		To   EthereumHexString `json:"to"`
		Data EthereumHexString `json:"data"`
	}
)

// Succeeded reports whether the receipt carries status 1. Pre-byzantium receipts without status count as failed.
func (r *EthereumTransactionReceipt) Succeeded() bool {
	return r.Status != nil && r.Status.Value() == 1
}

func (l *EthereumEventLog) TopicStrings() []string {
	topics := make([]string, 0, len(l.Topics))
	for _, t := range l.Topics {
		topics = append(topics, t.Value())
	}
	return topics
}

func (v EthereumHexString) MarshalJSON() ([]byte, error) {
	s := fmt.Sprintf(`"%s"`, v)
	return []byte(s), nil
}

func (v *EthereumHexString) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return errors.Wrap(err, "failed to unmarshal EthereumHexString")
	}
	s = strings.ToLower(s)

	*v = EthereumHexString(s)
	return nil
}

func (v EthereumHexString) Value() string {
	return string(v)
}

func (v EthereumQuantity) MarshalJSON() ([]byte, error) {
	s := fmt.Sprintf(`"%s"`, hexutil.EncodeUint64(uint64(v)))
	return []byte(s), nil
}

func (v *EthereumQuantity) UnmarshalJSON(input []byte) error {
	if len(input) > 0 && input[0] != '"' {
		var i uint64
		if err := json.Unmarshal(input, &i); err != nil {
			return errors.Wrap(err, "failed to unmarshal EthereumQuantity into uint64")
		}

		*v = EthereumQuantity(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return errors.Wrap(err, "failed to unmarshal EthereumQuantity into string")
	}

	if s == "" {
		*v = 0
		return nil
	}

	i, err := hexutil.DecodeUint64(s)
	if err != nil {
		return errors.Wrapf(err, "failed to decode EthereumQuantity %v", s)
	}

	*v = EthereumQuantity(i)
	return nil
}

func (v EthereumQuantity) Value() uint64 {
	return uint64(v)
}

func (v EthereumBigQuantity) MarshalJSON() ([]byte, error) {
	bi := big.Int(v)
	s := fmt.Sprintf(`"%s"`, hexutil.EncodeBig(&bi))
	return []byte(s), nil
}

func (v *EthereumBigQuantity) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return errors.Wrap(err, "failed to unmarshal EthereumBigQuantity")
	}

	if s == "" || s == "0x" {
		*v = EthereumBigQuantity{}
		return nil
	}

	i, err := hexutil.DecodeBig(s)
	if err != nil {
		return errors.Wrapf(err, "failed to decode EthereumBigQuantity %v", s)
	}

	*v = EthereumBigQuantity(*i)
	return nil
}

func (v EthereumBigQuantity) Value() string {
	i := big.Int(v)
	return i.String()
}
