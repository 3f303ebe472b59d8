package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/pkg/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type RequestMethod struct {
	Name    string
	Timeout time.Duration
}

type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint   `json:"id"`
}

type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var jsonRPCVersion = "2.0"

var defaultBackoffs = []time.Duration{
	time.Second * 1,
	time.Second * 3,
	time.Second * 5,
	time.Second * 10,
	time.Second * 20,
	time.Second * 30,
	time.Second * 60,
}

type Client struct {
	Logger       *zap.Logger
	httpClient   *http.Client
	clientConfig *EthereumClientConfig
}

type EthereumClientConfig struct {
	BaseUrl      string
	ProviderName string
	// Backoffs holds the wait after each failed attempt; its length is the attempt count.
	Backoffs []time.Duration
}

func ConvertGlobalConfigToEthereumConfig(cfg *config.EthereumRpcConfig) *EthereumClientConfig {
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	if attempts > len(defaultBackoffs) {
		attempts = len(defaultBackoffs)
	}
	return &EthereumClientConfig{
		BaseUrl:      cfg.RpcUrl,
		ProviderName: cfg.ProviderName,
		Backoffs:     defaultBackoffs[:attempts],
	}
}

func NewClient(cfg *EthereumClientConfig, l *zap.Logger) *Client {
	client := &http.Client{
		Timeout: time.Second * 30,
	}
	if len(cfg.Backoffs) == 0 {
		cfg.Backoffs = []time.Duration{0}
	}

	l.Sugar().Infow("Creating new Ethereum client",
		zap.String("providerName", cfg.ProviderName),
		zap.Int("attempts", len(cfg.Backoffs)),
	)

	return &Client{
		httpClient:   client,
		Logger:       l,
		clientConfig: cfg,
	}
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) ProviderName() string {
	return c.clientConfig.ProviderName
}

func (c *Client) GetChainId(ctx context.Context) (uint64, error) {
	res, err := c.Call(ctx, GetChainIdRequest(1), RPCMethod_chainId.RequestMethod)
	if err != nil {
		return 0, err
	}
	chainId, err := RPCMethod_chainId.ResponseParser(res.Result)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse chain id")
	}
	return chainId.Value(), nil
}

// GetLatestBlockHeader returns the current head number and timestamp in a single round trip.
func (c *Client) GetLatestBlockHeader(ctx context.Context) (*EthereumBlockHeader, error) {
	res, err := c.Call(ctx, GetLatestBlockHeaderRequest(1), RPCMethod_getBlockByNumber.RequestMethod)
	if err != nil {
		return nil, err
	}
	block, err := RPCMethod_getBlockByNumber.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse block",
			zap.Error(err),
			zap.String("raw response", string(res.Result)),
		)
		return nil, err
	}
	return block, nil
}

func (c *Client) GetLogs(ctx context.Context, filter *EthereumLogFilter) ([]*EthereumEventLog, error) {
	res, err := c.Call(ctx, GetLogsRequest(filter, 1), RPCMethod_getLogs.RequestMethod)
	if err != nil {
		return nil, err
	}
	logs, err := RPCMethod_getLogs.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse logs",
			zap.Error(err),
			zap.Uint64("fromBlock", filter.FromBlock.Value()),
			zap.Uint64("toBlock", filter.ToBlock.Value()),
		)
		return nil, err
	}
	return logs, nil
}

// GetTransactionReceipt returns (nil, nil) while the transaction is still pending.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*EthereumTransactionReceipt, error) {
	res, err := c.Call(ctx, GetTransactionReceiptRequest(txHash, 1), RPCMethod_getTransactionReceipt.RequestMethod)
	if err != nil {
		return nil, err
	}
	txReceipt, err := RPCMethod_getTransactionReceipt.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse transaction receipt",
			zap.Error(err),
			zap.String("raw response", string(res.Result)),
		)
		return nil, err
	}
	return txReceipt, nil
}

func (c *Client) EthCall(ctx context.Context, msg *EthereumCallMsg, block string) (string, error) {
	res, err := c.Call(ctx, GetCallRequest(msg, block, 1), RPCMethod_call.RequestMethod)
	if err != nil {
		return "", err
	}
	return RPCMethod_call.ResponseParser(res.Result)
}

// GetErc20Balance reads balanceOf(holder) on the token at the latest block, in base units.
func (c *Client) GetErc20Balance(ctx context.Context, token string, holder string) (*big.Int, error) {
	data, err := erc20.PackBalanceOf(common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	out, err := c.EthCall(ctx, &EthereumCallMsg{
		To:   EthereumHexString(token),
		Data: EthereumHexString(hexutil.Encode(data)),
	}, "latest")
	if err != nil {
		return nil, err
	}
	return erc20.UnpackBalanceOf(common.FromHex(out))
}

// SendRawTransaction broadcasts a signed transaction exactly once. A failed broadcast is never retried here;
// resubmitting is the caller's decision.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx string) (string, error) {
	res, err := c.call(ctx, GetSendRawTransactionRequest(rawTx, 1), RPCMethod_sendRawTransaction.RequestMethod)
	if err != nil {
		return "", err
	}
	return RPCMethod_sendRawTransaction.ResponseParser(res.Result)
}

func (c *Client) call(ctx context.Context, rpcRequest *RPCRequest, method *RequestMethod) (*RPCResponse, error) {
	requestBody, err := json.Marshal(rpcRequest)
	if err != nil {
		return nil, err
	}
	c.Logger.Sugar().Debugw("Request body", zap.String("requestBody", string(requestBody)))

	ctx, cancel := context.WithTimeout(ctx, method.Timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clientConfig.BaseUrl, bytes.NewReader(requestBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	if response.StatusCode != http.StatusOK {
		return nil, errors.Errorf("received http error code %+v", response.StatusCode)
	}

	destination := &RPCResponse{}
	if err := json.Unmarshal(responseBody, destination); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	if destination.Error != nil {
		return nil, destination.Error
	}

	return destination, nil
}

// Call retries the request with the configured backoffs. RPC level errors (a well formed error payload) are
// returned immediately since retrying would produce the same answer.
func (c *Client) Call(ctx context.Context, rpcRequest *RPCRequest, method *RequestMethod) (*RPCResponse, error) {
	var lastErr error
	for i, backoff := range c.clientConfig.Backoffs {
		res, err := c.call(ctx, rpcRequest, method)
		if err == nil {
			if i > 0 {
				c.Logger.Sugar().Infow("Successfully called after backoff",
					zap.Int("attempt", i+1),
					zap.String("method", rpcRequest.Method),
				)
			}
			return res, nil
		}
		lastErr = err

		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		c.Logger.Sugar().Errorw("Failed to call",
			zap.Error(err),
			zap.Duration("backoff", backoff),
			zap.String("method", rpcRequest.Method),
		)
		if i == len(c.clientConfig.Backoffs)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	c.Logger.Sugar().Errorw("Exceeded retries for Call", zap.String("method", rpcRequest.Method))
	return nil, errors.Wrapf(lastErr, "exceeded retries for %s", rpcRequest.Method)
}
