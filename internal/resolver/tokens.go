// internal/resolver/tokens.go
package resolver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-hft/internal/source"
)

// TokenList – результат разрешения списка токенов
type TokenList struct {
	Tokens    []source.Token `json:"tokens"`
	Source    string         `json:"source"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// Lookup finds a token by mint address.
func (l TokenList) Lookup(mint string) (source.Token, bool) {
	for _, t := range l.Tokens {
		if t.Address == mint {
			return t, true
		}
	}
	return source.Token{}, false
}

// Index maps mint addresses to tokens.
func (l TokenList) Index() map[string]source.Token {
	index := make(map[string]source.Token, len(l.Tokens))
	for _, t := range l.Tokens {
		index[t.Address] = t
	}
	return index
}

// TokenListResolver resolves the token list through the token-list sources.
// A successful list is reused for the configured TTL; failures are not cached.
// Concurrent misses share one download.
type TokenListResolver struct {
	clients []source.TokenListClient
	logger  *zap.Logger
	opts    options
	group   singleflight.Group

	mu     sync.Mutex
	cached *TokenList
	index  map[string]source.Token
}

// NewTokenListResolver создает резолвер списка токенов
func NewTokenListResolver(clients []source.TokenListClient, logger *zap.Logger, opts ...Option) *TokenListResolver {
	return &TokenListResolver{
		clients: append([]source.TokenListClient(nil), clients...),
		logger:  logger.Named("token-resolver"),
		opts:    buildOptions(opts),
	}
}

// ResolveTokens returns the list or an empty list with source "none".
func (r *TokenListResolver) ResolveTokens(ctx context.Context) (TokenList, error) {
	if list, ok := r.fresh(); ok {
		return list, nil
	}
	if ctx.Err() != nil {
		return TokenList{}, canceled(ctx)
	}

	// общая загрузка не зависит от отмены одного из ожидающих,
	// каждая попытка ограничена таймаутом источника
	ch := r.group.DoChan("tokens", func() (any, error) {
		return r.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return TokenList{}, res.Err
		}
		return res.Val.(TokenList), nil
	case <-ctx.Done():
		return TokenList{}, canceled(ctx)
	}
}

func (r *TokenListResolver) fresh() (TokenList, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.opts.tokenTTL > 0 && r.opts.now().Sub(r.cached.FetchedAt) < r.opts.tokenTTL {
		return *r.cached, true
	}
	return TokenList{}, false
}

func (r *TokenListResolver) fetch(ctx context.Context) (TokenList, error) {
	tokens, name, err := firstSuccess(ctx, r.logger, r.opts.observer, source.CapabilityTokenList, r.clients,
		func(ctx context.Context, c source.TokenListClient) ([]source.Token, error) {
			return c.FetchTokens(ctx)
		})
	switch {
	case err == nil:
		list := TokenList{Tokens: tokens, Source: name, FetchedAt: r.opts.now()}
		index := list.Index()
		r.mu.Lock()
		r.cached = &list
		r.index = index
		r.mu.Unlock()
		return list, nil
	case err != errExhausted:
		return TokenList{}, err
	}

	r.logger.Warn("all token list sources failed")
	r.opts.observer.ObserveFallback(string(source.CapabilityTokenList), SourceNone)
	return TokenList{Tokens: []source.Token{}, Source: SourceNone, FetchedAt: r.opts.now()}, nil
}

// Token resolves one mint, refreshing the list when needed.
func (r *TokenListResolver) Token(ctx context.Context, mint string) (source.Token, bool, error) {
	list, err := r.ResolveTokens(ctx)
	if err != nil {
		return source.Token{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil && r.cached != nil && r.cached.FetchedAt.Equal(list.FetchedAt) {
		t, ok := r.index[mint]
		return t, ok, nil
	}
	t, ok := list.Lookup(mint)
	return t, ok, nil
}
