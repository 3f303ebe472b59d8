package tests

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FakeChain is an in-memory stand-in for the JSON-RPC client. Fields may be changed between calls.
type FakeChain struct {
	mu sync.Mutex

	Head     uint64
	HeadTime time.Time
	HeadErr  error

	// keyed by lowercased holder address, base units
	Balances   map[string]*big.Int
	BalanceErr error

	Logs     []*ethereum.EthereumEventLog
	LogsErr  error
	LogCalls [][2]uint64

	Receipts map[string]*ethereum.EthereumTransactionReceipt

	SentRaw    []string
	SendErr    error
	NextTxHash string
}

func NewFakeChain(head uint64, headTime time.Time) *FakeChain {
	return &FakeChain{
		Head:     head,
		HeadTime: headTime,
		Balances: make(map[string]*big.Int),
		Receipts: make(map[string]*ethereum.EthereumTransactionReceipt),
	}
}

func (f *FakeChain) GetLatestBlockHeader(ctx context.Context) (*ethereum.EthereumBlockHeader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HeadErr != nil {
		return nil, f.HeadErr
	}
	return &ethereum.EthereumBlockHeader{
		Hash:      ethereum.EthereumHexString(fmt.Sprintf("0x%064x", f.Head)),
		Number:    ethereum.EthereumQuantity(f.Head),
		Timestamp: ethereum.EthereumQuantity(f.HeadTime.Unix()),
	}, nil
}

func (f *FakeChain) SetBalance(holder string, baseUnits int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[strings.ToLower(holder)] = big.NewInt(baseUnits)
}

func (f *FakeChain) GetErc20Balance(ctx context.Context, token string, holder string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if b, ok := f.Balances[strings.ToLower(holder)]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *FakeChain) GetLogs(ctx context.Context, filter *ethereum.EthereumLogFilter) ([]*ethereum.EthereumEventLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LogCalls = append(f.LogCalls, [2]uint64{filter.FromBlock.Value(), filter.ToBlock.Value()})
	if f.LogsErr != nil {
		return nil, f.LogsErr
	}
	logs := make([]*ethereum.EthereumEventLog, 0)
	for _, l := range f.Logs {
		if !strings.EqualFold(l.Address.Value(), filter.Address.Value()) {
			continue
		}
		if l.BlockNumber.Value() < filter.FromBlock.Value() || l.BlockNumber.Value() > filter.ToBlock.Value() {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// AddTransferLog appends a Transfer log emitted by token.
func (f *FakeChain) AddTransferLog(token string, txHash string, logIndex uint64, block uint64, from string, to string, amount int64) *ethereum.EthereumEventLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &ethereum.EthereumEventLog{
		LogIndex:        ethereum.EthereumQuantity(logIndex),
		TransactionHash: ethereum.EthereumHexString(strings.ToLower(txHash)),
		BlockNumber:     ethereum.EthereumQuantity(block),
		Address:         ethereum.EthereumHexString(strings.ToLower(token)),
		Data:            ethereum.EthereumHexString(hexutil.Encode(common.LeftPadBytes(big.NewInt(amount).Bytes(), 32))),
		Topics: []ethereum.EthereumHexString{
			ethereum.EthereumHexString(strings.ToLower(erc20.TransferEventTopic.Hex())),
			ethereum.EthereumHexString(strings.ToLower(common.BytesToHash(common.HexToAddress(from).Bytes()).Hex())),
			ethereum.EthereumHexString(strings.ToLower(common.BytesToHash(common.HexToAddress(to).Bytes()).Hex())),
		},
	}
	f.Logs = append(f.Logs, l)
	return l
}

func (f *FakeChain) SetReceipt(txHash string, success bool, block uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := ethereum.EthereumQuantity(0)
	if success {
		status = 1
	}
	f.Receipts[strings.ToLower(txHash)] = &ethereum.EthereumTransactionReceipt{
		TransactionHash: ethereum.EthereumHexString(strings.ToLower(txHash)),
		BlockNumber:     ethereum.EthereumQuantity(block),
		Status:          &status,
	}
}

func (f *FakeChain) GetTransactionReceipt(ctx context.Context, txHash string) (*ethereum.EthereumTransactionReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.Receipts[strings.ToLower(txHash)]; ok {
		return r, nil
	}
	return nil, nil
}

func (f *FakeChain) SendRawTransaction(ctx context.Context, rawTx string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.SentRaw = append(f.SentRaw, rawTx)
	if f.NextTxHash != "" {
		return f.NextTxHash, nil
	}
	return fmt.Sprintf("0x%064x", len(f.SentRaw)), nil
}

func (f *FakeChain) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.SentRaw)
}

func (f *FakeChain) SetHead(head uint64, headTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Head = head
	f.HeadTime = headTime
}
