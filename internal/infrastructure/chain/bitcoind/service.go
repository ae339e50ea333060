package bitcoind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/dgraph-io/ristretto"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/circuitbreaker"
)

const (
	// DefaultCacheTTL is the default lifetime of cached read results.
	DefaultCacheTTL = 5 * time.Second
)

var (
	// ErrNullHost ...
	ErrNullHost = errors.New("rpc host must not be null")
	// ErrFeeEstimationUnavailable ...
	ErrFeeEstimationUnavailable = errors.New("node fee estimation unavailable")
)

// Opts is the struct given to NewService method
type Opts struct {
	Host       string
	User       string
	Password   string
	DisableTLS bool
	// CacheTTL is the lifetime of cached read results, DefaultCacheTTL if zero.
	CacheTTL time.Duration
	// SkipHealthCheck skips the connectivity check done when creating the
	// service.
	SkipHealthCheck bool
}

func (o Opts) validate() error {
	if len(o.Host) <= 0 {
		return ErrNullHost
	}
	return nil
}

type service struct {
	opts    Opts
	client  *rpcclient.Client
	cache   *ristretto.Cache
	breaker *gobreaker.CircuitBreaker

	lock          *sync.Mutex
	walletClients map[string]*rpcclient.Client
}

// NewService returns the bitcoind implementation of the ChainClient
// interface. It talks to the JSON-RPC interface of the node in HTTP POST mode.
// Wallet-scoped requests are routed to the node's /wallet/<name> endpoint.
func NewService(opts Opts) (ports.ChainClient, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	client, err := newClient(opts, opts.Host)
	if err != nil {
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc cache: %w", err)
	}

	svc := &service{
		opts:          opts,
		client:        client,
		cache:         cache,
		breaker:       circuitbreaker.NewCircuitBreaker("bitcoind"),
		lock:          &sync.Mutex{},
		walletClients: make(map[string]*rpcclient.Client),
	}

	if !opts.SkipHealthCheck {
		if _, err := svc.GetBlockCount(context.Background()); err != nil {
			client.Shutdown()
			return nil, fmt.Errorf("health check: %w", err)
		}
	}
	return svc, nil
}

func newClient(opts Opts, host string) (*rpcclient.Client, error) {
	return rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         opts.User,
		Pass:         opts.Password,
		HTTPPostMode: true,
		DisableTLS:   opts.DisableTLS,
	}, nil)
}

func (s *service) walletClient(name string) (*rpcclient.Client, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if c, ok := s.walletClients[name]; ok {
		return c, nil
	}
	c, err := newClient(s.opts, fmt.Sprintf("%s/wallet/%s", s.opts.Host, name))
	if err != nil {
		return nil, err
	}
	s.walletClients[name] = c
	return c, nil
}

// call sends the request and waits for its response until the context is
// done. A cancelled request may still be processed by the node.
func call(
	ctx context.Context, client *rpcclient.Client,
	method string, result interface{}, params ...interface{},
) error {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		buf, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		rawParams = append(rawParams, buf)
	}

	type response struct {
		result json.RawMessage
		err    error
	}
	future := client.RawRequestAsync(method, rawParams)
	resChan := make(chan response, 1)
	go func() {
		res, err := future.Receive()
		resChan <- response{res, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resChan:
		if res.err != nil {
			return handleError(res.err)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(res.result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
		return nil
	}
}

// cachedCall serves the result from the cache if present, otherwise it sends
// the request through the circuit breaker. The result is cached only if
// cacheable returns true.
func (s *service) cachedCall(
	ctx context.Context, key string, result interface{},
	cacheable func() bool, method string, params ...interface{},
) error {
	if cached, ok := s.cache.Get(key); ok {
		if err := json.Unmarshal(cached.([]byte), result); err == nil {
			return nil
		}
	}

	if _, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, call(ctx, s.client, method, result, params...)
	}); err != nil {
		return err
	}

	if cacheable == nil || cacheable() {
		if buf, err := json.Marshal(result); err == nil {
			s.cache.SetWithTTL(key, buf, 1, s.opts.CacheTTL)
		}
	}
	return nil
}

// handleError converts errors returned by the node to ports.RPCError.
func handleError(err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return &ports.RPCError{
			Code:    int(rpcErr.Code),
			Message: rpcErr.Message,
		}
	}
	return err
}

func rpcErrorCode(err error) (int, string, bool) {
	var rpcErr *ports.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code, strings.ToLower(rpcErr.Message), true
	}
	return 0, "", false
}

func isWalletAlreadyLoaded(err error) bool {
	code, msg, ok := rpcErrorCode(err)
	if !ok {
		return false
	}
	return code == ports.RPCWalletAlreadyLoaded ||
		(code == ports.RPCWalletError && strings.Contains(msg, "already loaded"))
}

func isWalletNotLoaded(err error) bool {
	code, _, ok := rpcErrorCode(err)
	return ok && code == ports.RPCWalletNotFound
}

func isWalletAlreadyExisting(err error) bool {
	code, msg, ok := rpcErrorCode(err)
	if !ok {
		return false
	}
	return code == ports.RPCWalletAlreadyExists ||
		(code == ports.RPCWalletError && strings.Contains(msg, "already exists"))
}

func isLabelNotFound(err error) bool {
	code, _, ok := rpcErrorCode(err)
	return ok && code == ports.RPCWalletInvalidLabelName
}

func logBenign(method string, err error) {
	log.WithError(err).Debugf("bitcoind: ignoring benign %s error", method)
}
