// Package decode implements C1: parsing inbound WebSocket JSON-RPC frames
// and decoding recognized event logs (PancakeV2 Swap, ERC20 Transfer,
// Fourmeme router/proxy events) into model.SwapEvent.
//
// Event signatures are hashed at init time with go-ethereum's Keccak256
// rather than hand-copied as hex literals, so the topic0 values are always
// correct for the ABI signature string next to them.
package decode

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// TopicV2Swap is topic0 for Uniswap-V2-family Swap(address,uint256,uint256,uint256,uint256,address).
	TopicV2Swap = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	// TopicERC20Transfer is topic0 for Transfer(address,address,uint256).
	TopicERC20Transfer = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

// Registry resolves addresses known to be Fourmeme router/proxy contracts.
// A log emitted by one of these addresses never carries a Swap-shaped
// payload itself (the proxy routes the call onward), so it is decoded from
// its transaction receipt rather than by topic0.
type Registry struct {
	fourmemeAddrs   map[string]struct{}
	primaryFourmeme string
	quoteAssets     map[string]struct{}
	wbnbAddr        string
}

// NewRegistry builds a decoder registry from configured Fourmeme
// proxy/router addresses, quote-asset (WBNB/USDT/USDC) addresses, and the
// WBNB address used to price a proxy buy paid in native BNB rather than a
// WBNB Transfer. The first entry of fourmemeAddrs is treated as the
// primary router; any further entries are alternate ("try buy") proxies.
func NewRegistry(fourmemeAddrs, quoteAssets []string, wbnbAddr string) *Registry {
	r := &Registry{
		fourmemeAddrs: make(map[string]struct{}, len(fourmemeAddrs)),
		quoteAssets:   make(map[string]struct{}, len(quoteAssets)),
		wbnbAddr:      normalize(wbnbAddr),
	}
	for i, a := range fourmemeAddrs {
		n := normalize(a)
		r.fourmemeAddrs[n] = struct{}{}
		if i == 0 {
			r.primaryFourmeme = n
		}
	}
	for _, a := range quoteAssets {
		r.quoteAssets[normalize(a)] = struct{}{}
	}
	return r
}

func (r *Registry) isFourmemeAddress(addr string) bool {
	_, ok := r.fourmemeAddrs[normalize(addr)]
	return ok
}

func (r *Registry) isPrimaryFourmemeAddress(addr string) bool {
	return r.primaryFourmeme != "" && normalize(addr) == r.primaryFourmeme
}

func (r *Registry) nativeQuoteAsset() string {
	return r.wbnbAddr
}

// IsQuoteAsset reports whether addr is one of the configured quote assets
// (WBNB/USDT/USDC).
func (r *Registry) IsQuoteAsset(addr string) bool {
	_, ok := r.quoteAssets[normalize(addr)]
	return ok
}

func normalize(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}
