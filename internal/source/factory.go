// internal/source/factory.go
package source

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// New создаёт клиент источника по его описанию
func New(desc Descriptor, httpClient *http.Client, logger *zap.Logger) (Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	switch desc.Kind {
	case KindRPC:
		return NewRPCBalanceClient(desc, logger), nil
	case KindSolscan:
		return NewSolscanBalanceClient(desc, httpClient, logger), nil
	case KindJupiterPrice:
		return NewJupiterPriceClient(desc, httpClient, logger), nil
	case KindCoinGecko:
		return NewCoinGeckoPriceClient(desc, httpClient, logger), nil
	case KindJupiterTokens:
		return NewJupiterTokenListClient(desc, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("source kind %s is not supported", desc.Kind)
	}
}

// Set groups the configured clients by capability, keeping configuration order.
type Set struct {
	Balance   []BalanceClient
	Price     []PriceClient
	TokenList []TokenListClient
}

// NewSet builds every descriptor in order. Priority inside a capability is
// the position in descs.
func NewSet(descs []Descriptor, httpClient *http.Client, logger *zap.Logger) (*Set, error) {
	set := &Set{}
	seen := make(map[string]struct{}, len(descs))
	for _, desc := range descs {
		if _, dup := seen[desc.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", desc.Name)
		}
		seen[desc.Name] = struct{}{}

		client, err := New(desc, httpClient, logger)
		if err != nil {
			return nil, err
		}
		switch desc.Capability {
		case CapabilityBalance:
			set.Balance = append(set.Balance, client.(BalanceClient))
		case CapabilityPrice:
			set.Price = append(set.Price, client.(PriceClient))
		case CapabilityTokenList:
			set.TokenList = append(set.TokenList, client.(TokenListClient))
		}
	}
	return set, nil
}

// MultiPricer returns the first price source able to price many assets.
func (s *Set) MultiPricer() (MultiPriceClient, bool) {
	for _, c := range s.Price {
		if mp, ok := c.(MultiPriceClient); ok {
			return mp, true
		}
	}
	return nil, false
}
