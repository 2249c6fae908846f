// internal/portfolio/holdings.go
package portfolio

import (
	"context"
	"fmt"
	"math/big"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-hft/internal/resolver"
	"github.com/rovshanmuradov/solana-hft/internal/source"
)

// getMultipleAccounts accepts at most 100 keys per call
const maxMintsPerCall = 100

// TokenDirectory resolves the token list. It fails only on cancellation.
type TokenDirectory interface {
	ResolveTokens(ctx context.Context) (resolver.TokenList, error)
}

// TokenAccountProvider lists SPL token balances of an owner over JSON-RPC.
type TokenAccountProvider struct {
	rpc     *rpc.Client
	tokens  TokenDirectory
	prices  source.MultiPriceClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewTokenAccountProvider создает провайдера позиций. tokens и prices могут быть nil:
// тогда символом служит сокращённый mint, а цена равна нулю.
func NewTokenAccountProvider(endpoint string, tokens TokenDirectory, prices source.MultiPriceClient, timeout time.Duration, logger *zap.Logger) *TokenAccountProvider {
	if timeout <= 0 {
		timeout = source.DefaultTimeout
	}
	return &TokenAccountProvider{
		rpc:     rpc.New(endpoint),
		tokens:  tokens,
		prices:  prices,
		timeout: timeout,
		logger:  logger.Named("holdings"),
	}
}

type tokenBalance struct {
	mint   solana.PublicKey
	amount uint64
}

// ListHoldings returns non-zero token positions of identity. The whole call,
// token list and pricing included, is bounded by the provider timeout.
// Decimals come from the mint account on chain, then from the token list;
// a position whose decimals are unknown keeps its raw amount and no price.
func (p *TokenAccountProvider) ListHoldings(ctx context.Context, identity string) ([]Position, error) {
	owner, err := source.DecodeIdentity(identity)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	balances, err := p.tokenBalances(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return []Position{}, nil
	}

	mints := make([]solana.PublicKey, 0, len(balances))
	seen := make(map[solana.PublicKey]bool, len(balances))
	for _, b := range balances {
		if !seen[b.mint] {
			seen[b.mint] = true
			mints = append(mints, b.mint)
		}
	}

	decimals, err := p.mintDecimals(ctx, mints)
	if err != nil {
		return nil, err
	}
	directory, err := p.directory(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(balances))
	priced := make([]bool, 0, len(balances))
	for _, b := range balances {
		mint := b.mint.String()
		symbol := shortMint(mint)
		tok, listed := directory[mint]
		if listed && tok.Symbol != "" {
			symbol = tok.Symbol
		}

		d, known := decimals[b.mint]
		if !known && listed {
			d, known = tok.Decimals, true
		}
		if !known {
			p.logger.Debug("mint decimals unknown, position left unpriced", zap.String("mint", mint))
		}

		positions = append(positions, Position{
			Symbol:   symbol,
			Mint:     mint,
			Quantity: decimal.NewFromBigInt(new(big.Int).SetUint64(b.amount), -int32(d)),
			Price:    decimal.Zero,
		})
		priced = append(priced, known)
	}

	p.applyPrices(ctx, positions, priced)
	return positions, nil
}

func (p *TokenAccountProvider) tokenBalances(ctx context.Context, owner solana.PublicKey) ([]tokenBalance, error) {
	out, err := p.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
		&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return nil, fmt.Errorf("getTokenAccountsByOwner: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("getTokenAccountsByOwner: empty result")
	}

	balances := make([]tokenBalance, 0, len(out.Value))
	for _, keyed := range out.Value {
		if keyed == nil || keyed.Account.Data == nil {
			continue
		}

		var acc token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&acc); err != nil {
			p.logger.Debug("skip undecodable token account", zap.String("account", keyed.Pubkey.String()), zap.Error(err))
			continue
		}
		if acc.Amount == 0 {
			continue
		}
		balances = append(balances, tokenBalance{mint: acc.Mint, amount: acc.Amount})
	}
	return balances, nil
}

// mintDecimals reads decimals from the mint accounts. RPC failures leave the
// map partial; only cancellation is returned.
func (p *TokenAccountProvider) mintDecimals(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]uint8, error) {
	out := make(map[solana.PublicKey]uint8, len(mints))
	for start := 0; start < len(mints); start += maxMintsPerCall {
		chunk := mints[start:min(start+maxMintsPerCall, len(mints))]

		res, err := p.rpc.GetMultipleAccountsWithOpts(ctx, chunk, &rpc.GetMultipleAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", resolver.ErrCanceled, context.Cause(ctx))
			}
			p.logger.Warn("mint accounts unavailable", zap.Int("mints", len(chunk)), zap.Error(err))
			continue
		}
		if res == nil {
			continue
		}

		for i, acc := range res.Value {
			if i >= len(chunk) || acc == nil || acc.Data == nil {
				continue
			}
			var m token.Mint
			if err := bin.NewBinDecoder(acc.Data.GetBinary()).Decode(&m); err != nil || !m.IsInitialized {
				p.logger.Debug("skip undecodable mint", zap.String("mint", chunk[i].String()), zap.Error(err))
				continue
			}
			out[chunk[i]] = m.Decimals
		}
	}
	return out, nil
}

func (p *TokenAccountProvider) directory(ctx context.Context) (map[string]source.Token, error) {
	if p.tokens == nil {
		return nil, nil
	}
	list, err := p.tokens.ResolveTokens(ctx)
	if err != nil {
		return nil, err
	}
	return list.Index(), nil
}

// applyPrices fills prices in place for positions marked in priced.
// Pricing failures leave prices at zero.
func (p *TokenAccountProvider) applyPrices(ctx context.Context, positions []Position, priced []bool) {
	if p.prices == nil {
		return
	}

	ids := make([]string, 0, len(positions))
	for i, pos := range positions {
		if priced[i] {
			ids = append(ids, pos.Mint)
		}
	}
	if len(ids) == 0 {
		return
	}

	prices, err := p.prices.FetchPrices(ctx, ids)
	if err != nil {
		p.logger.Warn("holdings pricing failed", zap.Int("mints", len(ids)), zap.Error(err))
		return
	}
	for i := range positions {
		if !priced[i] {
			continue
		}
		if px, ok := prices[positions[i].Mint]; ok {
			positions[i].Price = px
		}
	}
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}

var _ HoldingsProvider = (*TokenAccountProvider)(nil)
