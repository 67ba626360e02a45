package client

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ChainClient is the balance/activity oracle backed by Solana RPC. It
// answers one-shot queries for recovery scanning and for re-quoting a
// burner's true balance when a push observation races ahead of RPC truth.
type ChainClient struct {
	rpcClient *rpc.Client
	rpcURL    string
}

// NewChainClient creates a Solana RPC client for the given endpoint.
func NewChainClient(rpcURL string) *ChainClient {
	return &ChainClient{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
	}
}

// Balance returns the address's SOL balance in lamports.
func (c *ChainClient) Balance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid Solana address: %w", err)
	}

	balance, err := c.rpcClient.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Value, nil
}

// HasActivity reports whether the address has ever appeared in a
// transaction. One signature is enough to answer, so the query is capped
// at a single result.
func (c *ChainClient) HasActivity(ctx context.Context, address string) (bool, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return false, fmt.Errorf("invalid Solana address: %w", err)
	}

	limit := 1
	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(
		ctx,
		pubkey,
		&rpc.GetSignaturesForAddressOpts{
			Limit: &limit,
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to get signatures: %w", err)
	}
	return len(sigs) > 0, nil
}
