package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CustodySigner talks to an external key-custody service over HTTP.
type CustodySigner struct {
	baseUrl    string
	httpClient *http.Client
	logger     *zap.Logger
}

type walletResponse struct {
	Address string `json:"address"`
}

type broadcastRequest struct {
	SignedPayload string `json:"signed_payload"`
}

type signAndBroadcastRequest struct {
	TxRequest *TxRequest `json:"tx_request"`
}

type broadcastResponse struct {
	TxHash string `json:"tx_hash"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewCustodySigner(baseUrl string, l *zap.Logger) *CustodySigner {
	return &CustodySigner{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     l,
	}
}

func (s *CustodySigner) SetHttpClient(client *http.Client) {
	s.httpClient = client
}

func (s *CustodySigner) walletUrl(userId string, suffix string) string {
	return fmt.Sprintf("%s/v1/wallets/%s%s", s.baseUrl, url.PathEscape(userId), suffix)
}

func (s *CustodySigner) WalletAddress(ctx context.Context, userId string) (string, error) {
	res := &walletResponse{}
	if err := s.do(ctx, http.MethodGet, s.walletUrl(userId, ""), nil, res); err != nil {
		return "", err
	}
	if res.Address == "" {
		return "", errors.Wrapf(ErrUnknownWallet, "user '%s'", userId)
	}
	return strings.ToLower(res.Address), nil
}

func (s *CustodySigner) Broadcast(ctx context.Context, userId string, signedPayload string) (string, error) {
	res := &broadcastResponse{}
	err := s.do(ctx, http.MethodPost, s.walletUrl(userId, "/broadcast"), &broadcastRequest{SignedPayload: signedPayload}, res)
	if err != nil {
		return "", err
	}
	return s.txHash(userId, res)
}

func (s *CustodySigner) SignAndBroadcast(ctx context.Context, userId string, req *TxRequest) (string, error) {
	res := &broadcastResponse{}
	err := s.do(ctx, http.MethodPost, s.walletUrl(userId, "/sign-and-broadcast"), &signAndBroadcastRequest{TxRequest: req}, res)
	if err != nil {
		return "", err
	}
	return s.txHash(userId, res)
}

func (s *CustodySigner) txHash(userId string, res *broadcastResponse) (string, error) {
	if res.TxHash == "" {
		return "", errors.New("custody signer returned no transaction hash")
	}
	s.logger.Sugar().Infow("Custody signer broadcast transaction",
		zap.String("userId", userId),
		zap.String("txHash", res.TxHash),
	)
	return strings.ToLower(res.TxHash), nil
}

func (s *CustodySigner) do(ctx context.Context, method string, u string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal custody request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create custody request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Sugar().Errorw("Custody signer request failed",
			zap.String("url", u),
			zap.Error(err),
		)
		return errors.Wrap(err, "custody signer request failed")
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read custody response")
	}

	if resp.StatusCode != http.StatusOK {
		errRes := &errorResponse{}
		if jsonErr := json.Unmarshal(content, errRes); jsonErr == nil && errRes.Error != "" {
			return errors.Errorf("custody signer returned %d: %s", resp.StatusCode, errRes.Error)
		}
		return errors.Errorf("custody signer returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(content, out); err != nil {
		return errors.Wrap(err, "failed to parse custody response")
	}
	return nil
}
