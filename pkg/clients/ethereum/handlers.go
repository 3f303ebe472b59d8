package ethereum

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type ResponseParserFunc[T any] func(res json.RawMessage) (T, error)

type RequestResponseHandler[T any] struct {
	RequestMethod  *RequestMethod
	ResponseParser ResponseParserFunc[T]
}

func isNullResult(res json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(res))
	return trimmed == "" || trimmed == "null"
}

func parseHexString(res json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(res, &s); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal hex string result")
	}
	return strings.ToLower(s), nil
}

var (
	RPCMethod_chainId = &RequestResponseHandler[EthereumQuantity]{
		RequestMethod: &RequestMethod{
			Name:    "eth_chainId",
			Timeout: time.Second * 5,
		},
		ResponseParser: func(res json.RawMessage) (EthereumQuantity, error) {
			var q EthereumQuantity
			if err := json.Unmarshal(res, &q); err != nil {
				return 0, err
			}
			return q, nil
		},
	}
	RPCMethod_getBlockByNumber = &RequestResponseHandler[*EthereumBlockHeader]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getBlockByNumber",
			Timeout: time.Second * 5,
		},
		ResponseParser: func(res json.RawMessage) (*EthereumBlockHeader, error) {
			if isNullResult(res) {
				return nil, errors.New("block not found")
			}
			block := &EthereumBlockHeader{}

			if err := json.Unmarshal(res, block); err != nil {
				return nil, err
			}
			return block, nil
		},
	}
	RPCMethod_getLogs = &RequestResponseHandler[[]*EthereumEventLog]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getLogs",
			Timeout: time.Second * 20,
		},
		ResponseParser: func(res json.RawMessage) ([]*EthereumEventLog, error) {
			logs := make([]*EthereumEventLog, 0)
			if isNullResult(res) {
				return logs, nil
			}
			if err := json.Unmarshal(res, &logs); err != nil {
				return nil, err
			}
			return logs, nil
		},
	}
	RPCMethod_getTransactionReceipt = &RequestResponseHandler[*EthereumTransactionReceipt]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getTransactionReceipt",
			Timeout: time.Second * 5,
		},
		ResponseParser: func(res json.RawMessage) (*EthereumTransactionReceipt, error) {
			// pending transactions have no receipt yet
			if isNullResult(res) {
				return nil, nil
			}
			receipt := &EthereumTransactionReceipt{}

			if err := json.Unmarshal(res, receipt); err != nil {
				return nil, err
			}
			return receipt, nil
		},
	}
	RPCMethod_call = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_call",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_sendRawTransaction = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_sendRawTransaction",
			Timeout: time.Second * 10,
		},
		ResponseParser: parseHexString,
	}
)

func GetChainIdRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_chainId.RequestMethod.Name,
		ID:      id,
	}
}

// GetLatestBlockHeaderRequest fetches the head block without transaction bodies.
func GetLatestBlockHeaderRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getBlockByNumber.RequestMethod.Name,
		Params:  []interface{}{"latest", false},
		ID:      id,
	}
}

func GetLogsRequest(filter *EthereumLogFilter, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getLogs.RequestMethod.Name,
		Params:  []interface{}{filter},
		ID:      id,
	}
}

func GetTransactionReceiptRequest(txHash string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getTransactionReceipt.RequestMethod.Name,
		Params:  []interface{}{txHash},
		ID:      id,
	}
}

// Block can be a hex block number or one of "latest", "safe", "finalized", "pending".
func GetCallRequest(msg *EthereumCallMsg, block string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_call.RequestMethod.Name,
		Params:  []interface{}{msg, block},
		ID:      id,
	}
}

func GetSendRawTransactionRequest(rawTx string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_sendRawTransaction.RequestMethod.Name,
		Params:  []interface{}{rawTx},
		ID:      id,
	}
}
