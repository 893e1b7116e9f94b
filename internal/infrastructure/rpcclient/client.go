// Package rpcclient implements C2: JSON-RPC calls against the BSC node
// (eth_getTransactionReceipt, eth_call, eth_blockNumber) with bounded
// retries, 429 detection, and per-client connection pooling so one
// *http.Client (and its TLS sessions) is reused across calls.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/ratelimit"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/observability"
)

// Client is a single HTTP-based JSON-RPC client. The service builds one
// instance at startup and shares it between the pipeline and the metadata
// resolver; dispatch workers do not use it.
type Client struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries uint64
	limiter    ratelimit.Limiter
	metrics    *observability.Registry

	idCounter int64
}

// NewClient builds a client with its own *http.Client and connection pool.
// Connection pool size defaults to a generous >=100 idle connections per
// host, since one client carries every RPC call the service makes.
// ratePerSecond caps outbound calls this client issues; <=0 disables the
// limiter (unbounded).
func NewClient(url string, ratePerSecond int, metrics *observability.Registry) *Client {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	var limiter ratelimit.Limiter
	if ratePerSecond > 0 {
		limiter = ratelimit.New(ratePerSecond)
	} else {
		limiter = ratelimit.NewUnlimited()
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Transport: transport, Timeout: 3 * time.Second},
		timeout:    3 * time.Second,
		maxRetries: 3,
		limiter:    limiter,
		metrics:    metrics,
	}
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one JSON-RPC round trip with exponential backoff retry on
// TransientError, honoring Retry-After on 429. NotFound and malformed
// responses are never retried.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	c.idCounter++
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.idCounter, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	op := func() error {
		c.limiter.Take()

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return &model.TransientError{Op: method, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if c.metrics != nil {
				c.metrics.RateLimited.Inc()
			}
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			return &model.TransientError{Op: method, StatusCode: 429, RetryAfter: retryAfter}
		}
		if resp.StatusCode >= 500 {
			return &model.TransientError{Op: method, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode))
		}

		var rpcResp rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: malformed response: %w", method, err))
		}
		if rpcResp.Error != nil {
			return backoff.Permanent(fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message))
		}
		result = rpcResp.Result
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMultiplier(2),
		backoff.WithMaxElapsedTime(0),
	), c.maxRetries)

	notify := func(err error, wait time.Duration) {
		if te, ok := err.(*model.TransientError); ok && te.RetryAfter > 0 {
			time.Sleep(time.Duration(te.RetryAfter) * time.Second)
		}
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return result, nil
}

func parseRetryAfter(h string) int {
	if h == "" {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}
