package signer

import (
	"context"

	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type RawTransactionSender interface {
	SendRawTransaction(ctx context.Context, rawTx string) (string, error)
}

// RpcSigner broadcasts user-signed transactions straight to the chain. It has no keys, so
// SignAndBroadcast always fails.
type RpcSigner struct {
	sender  RawTransactionSender
	wallets storage.WalletStore
	logger  *zap.Logger
}

func NewRpcSigner(sender RawTransactionSender, wallets storage.WalletStore, l *zap.Logger) *RpcSigner {
	return &RpcSigner{
		sender:  sender,
		wallets: wallets,
		logger:  l,
	}
}

func (s *RpcSigner) WalletAddress(ctx context.Context, userId string) (string, error) {
	wallet, err := s.wallets.GetWallet(userId)
	if err != nil {
		return "", err
	}
	if wallet == nil {
		return "", errors.Wrapf(ErrUnknownWallet, "user '%s'", userId)
	}
	return wallet.Address, nil
}

func (s *RpcSigner) Broadcast(ctx context.Context, userId string, signedPayload string) (string, error) {
	txHash, err := s.sender.SendRawTransaction(ctx, signedPayload)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to broadcast signed transaction",
			zap.String("userId", userId),
			zap.Error(err),
		)
		return "", errors.Wrap(err, "broadcast failed")
	}
	s.logger.Sugar().Infow("Broadcast signed transaction",
		zap.String("userId", userId),
		zap.String("txHash", txHash),
	)
	return txHash, nil
}

func (s *RpcSigner) SignAndBroadcast(ctx context.Context, userId string, req *TxRequest) (string, error) {
	return "", ErrCustodyDisabled
}
