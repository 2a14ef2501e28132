// internal/rpcpool/endpoints.go
package rpcpool

import "github.com/bigyan313/OBGC-V19/internal/config"

// Kind distinguishes premium (keyed) endpoints from public fallbacks.
type Kind string

const (
	KindPremium Kind = "premium"
	KindPublic  Kind = "public"
)

// Endpoint is one RPC endpoint in the failover chain.
type Endpoint struct {
	URL  string
	Kind Kind
}

// BuildEndpoints assembles the ordered endpoint chain: the premium endpoint
// first when its key is properly configured, then the public list in its
// fixed reliability order. An unconfigured premium key contributes nothing;
// the chain silently degrades to public endpoints only.
func BuildEndpoints(cfg *config.Config) []Endpoint {
	var endpoints []Endpoint

	if premium := cfg.HeliusEndpoint(); premium != "" {
		endpoints = append(endpoints, Endpoint{URL: premium, Kind: KindPremium})
	}
	for _, url := range cfg.RPCList {
		endpoints = append(endpoints, Endpoint{URL: url, Kind: KindPublic})
	}
	return endpoints
}
