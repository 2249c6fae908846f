// internal/source/rpc.go
package source

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RPCBalanceClient – тонкий адаптер над solana-go для метода getBalance.
type RPCBalanceClient struct {
	desc   Descriptor
	rpc    *rpc.Client
	logger *zap.Logger
}

// NewRPCBalanceClient создаёт клиент для одного JSON-RPC узла.
func NewRPCBalanceClient(desc Descriptor, logger *zap.Logger) *RPCBalanceClient {
	return &RPCBalanceClient{
		desc:   desc,
		rpc:    rpc.New(desc.Endpoint),
		logger: logger.Named("rpc-source").With(zap.String("source", desc.Name)),
	}
}

// Descriptor возвращает описание источника.
func (c *RPCBalanceClient) Descriptor() Descriptor {
	return c.desc
}

// FetchBalance получает баланс в SOL. Ноль – корректный результат.
func (c *RPCBalanceClient) FetchBalance(ctx context.Context, identity string) (decimal.Decimal, error) {
	pubkey, err := DecodeIdentity(identity)
	if err != nil {
		return decimal.Zero, NewError(err, c.desc.Name, "getBalance")
	}

	callCtx, cancel := c.desc.withTimeout(ctx)
	defer cancel()

	result, err := c.rpc.GetBalance(callCtx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		c.logger.Debug("getBalance error", zap.Error(err))
		return decimal.Zero, NewError(classify(callCtx, err), c.desc.Name, "getBalance")
	}
	if result == nil {
		return decimal.Zero, NewError(ErrInvalidResponse, c.desc.Name, "getBalance")
	}
	return LamportsToSOL(result.Value), nil
}

// DecodeIdentity turns a base58 wallet identity into a public key.
func DecodeIdentity(identity string) (solana.PublicKey, error) {
	raw, err := base58.Decode(identity)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIdentity, solana.PublicKeyLength, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// LamportsToSOL converts a lamport amount without float rounding.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

var _ BalanceClient = (*RPCBalanceClient)(nil)
