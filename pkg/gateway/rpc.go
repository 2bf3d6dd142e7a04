package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/restakelabs/restakex/pkg/cache"
)

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

// call performs one JSON-RPC method call and returns the raw result.
func (g *Gateway) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	var resp rpcResponse
	err := g.rpc.doJSON(ctx, http.MethodPost, "", rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("rpc %s: %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// BlockNumber returns the current chain head, cached under the rpc namespace.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	err := g.cached(ctx, cache.NamespaceRPC, "eth_blockNumber", g.rpcTTL, &hex, func() (any, error) {
		raw, err := g.call(ctx, "eth_blockNumber")
		if err != nil {
			return nil, err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return 0, err
	}
	return parseHexUint(hex)
}

// ChainID returns the chain id, cached under the rpc namespace.
func (g *Gateway) ChainID(ctx context.Context) (uint64, error) {
	var hex string
	err := g.cached(ctx, cache.NamespaceRPC, "eth_chainId", g.rpcTTL, &hex, func() (any, error) {
		raw, err := g.call(ctx, "eth_chainId")
		if err != nil {
			return nil, err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return 0, err
	}
	return parseHexUint(hex)
}

// decimals() selector.
const decimalsCallData = "0x313ce567"

// TokenDecimals reads a token's decimals via eth_call, cached under the
// contracts namespace (token metadata effectively never changes).
func (g *Gateway) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	var hex string
	key := "decimals:" + strings.ToLower(token)
	err := g.cached(ctx, cache.NamespaceContracts, key, g.contractsTTL, &hex, func() (any, error) {
		raw, err := g.call(ctx, "eth_call",
			map[string]string{"to": strings.ToLower(token), "data": decimalsCallData}, "latest")
		if err != nil {
			return nil, err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return 0, err
	}
	n, err := parseHexUint(hex)
	if err != nil {
		return 0, err
	}
	if n > 255 {
		return 0, fmt.Errorf("token %s: decimals %d out of range", token, n)
	}
	return uint8(n), nil
}

func parseHexUint(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex quantity %q", s)
	}
	n, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad hex quantity %q: %w", s, err)
	}
	return n, nil
}
