// internal/source/rest.go
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SolscanBalanceClient reads native balances from a block-explorer REST API.
type SolscanBalanceClient struct {
	restClient
}

// NewSolscanBalanceClient builds an explorer-backed balance source.
func NewSolscanBalanceClient(desc Descriptor, httpClient *http.Client, logger *zap.Logger) *SolscanBalanceClient {
	return &SolscanBalanceClient{restClient: newRESTClient(desc, httpClient, logger.Named("explorer-source"))}
}

type solscanAccount struct {
	Lamports *uint64 `json:"lamports"`
	Data     *struct {
		Lamports *uint64 `json:"lamports"`
	} `json:"data"`
}

// FetchBalance returns the balance in SOL.
func (c *SolscanBalanceClient) FetchBalance(ctx context.Context, identity string) (decimal.Decimal, error) {
	if strings.TrimSpace(identity) == "" {
		return decimal.Zero, NewError(ErrInvalidIdentity, c.desc.Name, "account")
	}
	endpoint := fmt.Sprintf("%s/account/%s", strings.TrimRight(c.desc.Endpoint, "/"), url.PathEscape(identity))

	var resp solscanAccount
	if err := c.getJSON(ctx, "account", endpoint, &resp); err != nil {
		return decimal.Zero, err
	}

	lamports := resp.Lamports
	if lamports == nil && resp.Data != nil {
		lamports = resp.Data.Lamports
	}
	if lamports == nil {
		return decimal.Zero, NewError(fmt.Errorf("%w: lamports missing", ErrInvalidResponse), c.desc.Name, "account")
	}
	return LamportsToSOL(*lamports), nil
}

// JupiterPriceClient reads prices from the Jupiter price API.
type JupiterPriceClient struct {
	restClient
}

// NewJupiterPriceClient builds a Jupiter price source for desc.Asset.
func NewJupiterPriceClient(desc Descriptor, httpClient *http.Client, logger *zap.Logger) *JupiterPriceClient {
	return &JupiterPriceClient{restClient: newRESTClient(desc, httpClient, logger.Named("jupiter-price"))}
}

type jupiterPriceResponse struct {
	Data map[string]*struct {
		ID    string  `json:"id"`
		Price *string `json:"price"`
	} `json:"data"`
}

// FetchPrice returns the unit price of the configured asset.
func (c *JupiterPriceClient) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	prices, err := c.FetchPrices(ctx, []string{c.desc.Asset})
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := prices[c.desc.Asset]
	if !ok {
		return decimal.Zero, NewError(fmt.Errorf("%w: no price for %s", ErrInvalidResponse, c.desc.Asset), c.desc.Name, "price")
	}
	return price, nil
}

// FetchPrices prices several mints in one call. Mints without a quote are
// omitted from the result.
func (c *JupiterPriceClient) FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	endpoint := c.desc.Endpoint + "?" + query.Encode()

	var resp jupiterPriceResponse
	if err := c.getJSON(ctx, "price", endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, NewError(fmt.Errorf("%w: data missing", ErrInvalidResponse), c.desc.Name, "price")
	}

	prices := make(map[string]decimal.Decimal, len(resp.Data))
	for id, entry := range resp.Data {
		if entry == nil || entry.Price == nil {
			continue
		}
		price, err := decimal.NewFromString(*entry.Price)
		if err != nil || price.IsNegative() {
			return nil, NewError(fmt.Errorf("%w: bad price %q for %s", ErrInvalidResponse, *entry.Price, id), c.desc.Name, "price")
		}
		prices[id] = price
	}
	return prices, nil
}

// CoinGeckoPriceClient reads USD prices from the CoinGecko simple price API.
type CoinGeckoPriceClient struct {
	restClient
}

// NewCoinGeckoPriceClient builds a CoinGecko price source for desc.Asset.
func NewCoinGeckoPriceClient(desc Descriptor, httpClient *http.Client, logger *zap.Logger) *CoinGeckoPriceClient {
	return &CoinGeckoPriceClient{restClient: newRESTClient(desc, httpClient, logger.Named("coingecko-price"))}
}

// FetchPrice returns the USD price of the configured coin id.
func (c *CoinGeckoPriceClient) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", c.desc.Asset)
	query.Set("vs_currencies", "usd")
	endpoint := c.desc.Endpoint + "?" + query.Encode()

	var resp map[string]map[string]decimal.Decimal
	if err := c.getJSON(ctx, "simple/price", endpoint, &resp); err != nil {
		return decimal.Zero, err
	}
	price, ok := resp[c.desc.Asset]["usd"]
	if !ok {
		return decimal.Zero, NewError(fmt.Errorf("%w: no usd price for %s", ErrInvalidResponse, c.desc.Asset), c.desc.Name, "simple/price")
	}
	if price.IsNegative() {
		return decimal.Zero, NewError(fmt.Errorf("%w: negative price", ErrInvalidResponse), c.desc.Name, "simple/price")
	}
	return price, nil
}

// JupiterTokenListClient downloads the Jupiter token list.
type JupiterTokenListClient struct {
	restClient
}

// NewJupiterTokenListClient builds a token list source.
func NewJupiterTokenListClient(desc Descriptor, httpClient *http.Client, logger *zap.Logger) *JupiterTokenListClient {
	return &JupiterTokenListClient{restClient: newRESTClient(desc, httpClient, logger.Named("jupiter-tokens"))}
}

// FetchTokens returns the token list with entries lacking an address dropped.
func (c *JupiterTokenListClient) FetchTokens(ctx context.Context) ([]Token, error) {
	var tokens []Token
	if err := c.getJSON(ctx, "tokens", c.desc.Endpoint, &tokens); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, NewError(fmt.Errorf("%w: token list missing", ErrInvalidResponse), c.desc.Name, "tokens")
	}

	valid := tokens[:0]
	for _, t := range tokens {
		if t.Address == "" {
			continue
		}
		valid = append(valid, t)
	}
	return valid, nil
}

var (
	_ BalanceClient    = (*SolscanBalanceClient)(nil)
	_ PriceClient      = (*JupiterPriceClient)(nil)
	_ MultiPriceClient = (*JupiterPriceClient)(nil)
	_ PriceClient      = (*CoinGeckoPriceClient)(nil)
	_ TokenListClient  = (*JupiterTokenListClient)(nil)
)
