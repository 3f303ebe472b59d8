package signer

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrCustodyDisabled = errors.New("server-custody signing is not enabled")
	ErrUnknownWallet   = errors.New("no wallet registered for user")
)

// TxRequest is an unsigned ERC-20 transfer the user or a custody signer must sign.
type TxRequest struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainId int64  `json:"chain_id"`
}

// Signer holds keys on behalf of users. The engine itself never sees a private key.
type Signer interface {
	WalletAddress(ctx context.Context, userId string) (string, error)
	// Broadcast submits a transaction the user already signed and returns its hash.
	Broadcast(ctx context.Context, userId string, signedPayload string) (string, error)
	// SignAndBroadcast signs req with the user's custodied key, submits it and returns its hash.
	SignAndBroadcast(ctx context.Context, userId string, req *TxRequest) (string, error)
}
