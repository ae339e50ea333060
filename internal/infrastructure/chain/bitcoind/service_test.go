package bitcoind

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcledger/internal/core/ports"
)

var ctx = context.Background()

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     interface{}       `json:"id"`
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type handlerFunc func(path string, params []json.RawMessage) (interface{}, *rpcErr)

// fakeNode is a minimal bitcoind JSON-RPC server.
type fakeNode struct {
	*httptest.Server
	lock     sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
	paths    map[string]string
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{
		handlers: map[string]handlerFunc{
			"getblockcount": func(string, []json.RawMessage) (interface{}, *rpcErr) {
				return 101, nil
			},
		},
		calls: map[string]int{},
		paths: map[string]string{},
	}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		n.lock.Lock()
		n.calls[req.Method]++
		n.paths[req.Method] = r.URL.Path
		handler, ok := n.handlers[req.Method]
		n.lock.Unlock()

		var result interface{}
		var rerr *rpcErr
		if !ok {
			rerr = &rpcErr{-32601, "Method not found"}
		} else {
			result, rerr = handler(r.URL.Path, req.Params)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": result,
			"error":  rerr,
			"id":     req.ID,
		})
	}))
	t.Cleanup(n.Close)
	return n
}

func (n *fakeNode) handle(method string, h handlerFunc) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) callCount(method string) int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.calls[method]
}

func (n *fakeNode) lastPath(method string) string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.paths[method]
}

func newTestService(t *testing.T, n *fakeNode) *service {
	svc, err := NewService(Opts{
		Host:       strings.TrimPrefix(n.URL, "http://"),
		User:       "user",
		Password:   "pass",
		DisableTLS: true,
	})
	require.NoError(t, err)
	return svc.(*service)
}

func staticResult(res interface{}) handlerFunc {
	return func(string, []json.RawMessage) (interface{}, *rpcErr) {
		return res, nil
	}
}

func staticError(code int, msg string) handlerFunc {
	return func(string, []json.RawMessage) (interface{}, *rpcErr) {
		return nil, &rpcErr{code, msg}
	}
}

const testBlockJSON = `{
	"hash": "0000000000000000000000000000000000000000000000000000000000000065",
	"height": 101,
	"time": 1700000000,
	"previousblockhash": "0000000000000000000000000000000000000000000000000000000000000064",
	"nextblockhash": "0000000000000000000000000000000000000000000000000000000000000066",
	"tx": [
		{
			"txid": "cb",
			"vin": [{"coinbase": "0165", "sequence": 4294967295}],
			"vout": [
				{"value": 50.00000000, "n": 0, "scriptPubKey": {"hex": "0014aa", "address": "bcrt1qminer"}},
				{"value": 0, "n": 1, "scriptPubKey": {"hex": "6a24aa21a9ed"}}
			]
		},
		{
			"txid": "t1",
			"vin": [{"txid": "aa", "vout": 0}, {"txid": "bb", "vout": 3}],
			"vout": [
				{"value": 0.0005, "n": 0, "scriptPubKey": {"hex": "0014bb", "address": "bcrt1qdest"}},
				{"value": 0.00001234, "n": 1, "scriptPubKey": {"hex": "76a914cc88ac", "addresses": ["mlegacy"]}}
			]
		}
	]
}`

func TestNewService(t *testing.T) {
	_, err := NewService(Opts{})
	require.Equal(t, ErrNullHost, err)

	n := newFakeNode(t)
	newTestService(t, n)
	require.Equal(t, 1, n.callCount("getblockcount"))

	n.handle("getblockcount", staticError(-28, "Loading block index..."))
	_, err = NewService(Opts{
		Host:       strings.TrimPrefix(n.URL, "http://"),
		DisableTLS: true,
	})
	require.Error(t, err)
}

func TestGetBlock(t *testing.T) {
	n := newFakeNode(t)
	svc := newTestService(t, n)

	var block map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(testBlockJSON), &block))
	n.handle("getblock", staticResult(block))

	b, err := svc.GetBlock(ctx, "0000000000000000000000000000000000000000000000000000000000000065")
	require.NoError(t, err)
	require.Equal(t, uint32(101), b.Height)
	require.Equal(t, int64(1700000000), b.Time)
	require.NotEmpty(t, b.NextHash)
	require.Len(t, b.Transactions, 2)

	coinbase := b.Transactions[0]
	require.True(t, coinbase.Inputs[0].Coinbase)
	require.Equal(t, uint64(5000000000), coinbase.Outputs[0].Amount)
	require.Empty(t, coinbase.Outputs[1].Address)

	tx := b.Transactions[1]
	require.Equal(t, []ports.TxInput{
		{TxID: "aa", VOut: 0}, {TxID: "bb", VOut: 3},
	}, tx.Inputs)
	require.Equal(t, ports.TxOutput{
		N: 0, Amount: 50000, Script: "0014bb", Address: "bcrt1qdest",
	}, tx.Outputs[0])
	require.Equal(t, uint64(1234), tx.Outputs[1].Amount)
	require.Equal(t, "mlegacy", tx.Outputs[1].Address)

	// blocks with a successor are served from cache
	svc.cache.Wait()
	cached, err := svc.GetBlock(ctx, b.Hash)
	require.NoError(t, err)
	require.Equal(t, b, cached)
	require.Equal(t, 1, n.callCount("getblock"))

	// the tip is always fetched again
	delete(block, "nextblockhash")
	tipHash := "0000000000000000000000000000000000000000000000000000000000000066"
	for i := 0; i < 2; i++ {
		tip, err := svc.GetBlock(ctx, tipHash)
		require.NoError(t, err)
		require.Empty(t, tip.NextHash)
		svc.cache.Wait()
	}
	require.Equal(t, 3, n.callCount("getblock"))
}

func TestEstimateFeeRate(t *testing.T) {
	n := newFakeNode(t)
	svc := newTestService(t, n)

	n.handle("estimatesmartfee", staticResult(map[string]interface{}{
		"feerate": 0.00005, "blocks": 6,
	}))
	rate, err := svc.EstimateFeeRate(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(5), rate)

	n.handle("estimatesmartfee", staticResult(map[string]interface{}{
		"errors": []string{"Insufficient data or no feerate found"}, "blocks": 2,
	}))
	_, err = svc.EstimateFeeRate(ctx, 2)
	require.ErrorIs(t, err, ErrFeeEstimationUnavailable)
}

func TestBroadcastTransaction(t *testing.T) {
	n := newFakeNode(t)
	svc := newTestService(t, n)

	n.handle("sendrawtransaction", staticResult("txid"))
	txid, err := svc.BroadcastTransaction(ctx, "0200")
	require.NoError(t, err)
	require.Equal(t, "txid", txid)

	n.handle("sendrawtransaction", staticError(-26, "min relay fee not met"))
	_, err = svc.BroadcastTransaction(ctx, "0200")
	var rpcErr *ports.RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -26, rpcErr.Code)
}

func TestWalletRPCs(t *testing.T) {
	t.Run("BenignErrors", func(t *testing.T) {
		n := newFakeNode(t)
		svc := newTestService(t, n)

		n.handle("loadwallet", staticError(-35, "Wallet \"w1\" is already loaded."))
		require.NoError(t, svc.LoadWallet(ctx, "w1"))

		n.handle("unloadwallet", staticError(-18, "Requested wallet does not exist or is not loaded"))
		require.NoError(t, svc.UnloadWallet(ctx, "w1"))

		n.handle("createwallet", staticError(-4, "Wallet file verification failed. Failed to create database path '/w1'. Database already exists."))
		require.NoError(t, svc.CreateWallet(ctx, "w1"))

		n.handle("createwallet", staticError(-36, "Wallet already exists"))
		require.NoError(t, svc.CreateWallet(ctx, "w1"))

		n.handle("listtransactions", staticError(-11, "Label not found"))
		txs, err := svc.ListTransactions(ctx, "w1", "shop", 10, 0)
		require.NoError(t, err)
		require.Empty(t, txs)
	})

	t.Run("FatalErrors", func(t *testing.T) {
		n := newFakeNode(t)
		svc := newTestService(t, n)

		n.handle("loadwallet", staticError(-18, "Wallet file not found"))
		err := svc.LoadWallet(ctx, "w1")
		var rpcErr *ports.RPCError
		require.ErrorAs(t, err, &rpcErr)
		require.Equal(t, ports.RPCWalletNotFound, rpcErr.Code)

		n.handle("createwallet", staticError(-4, "Wallet file verification failed"))
		require.Error(t, svc.CreateWallet(ctx, "w1"))
	})

	t.Run("ListLoadedWallets", func(t *testing.T) {
		n := newFakeNode(t)
		svc := newTestService(t, n)

		n.handle("listwallets", staticResult([]string{"w1", "w2"}))
		wallets, err := svc.ListLoadedWallets(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"w1", "w2"}, wallets)
	})

	t.Run("ImportAddress", func(t *testing.T) {
		n := newFakeNode(t)
		svc := newTestService(t, n)

		n.handle("getdescriptorinfo", staticResult(map[string]interface{}{
			"descriptor": "addr(bcrt1qaddr)#abcdefgh", "checksum": "abcdefgh",
		}))
		var imported []importDescriptorRequest
		n.handle("importdescriptors", func(_ string, params []json.RawMessage) (interface{}, *rpcErr) {
			json.Unmarshal(params[0], &imported)
			return []map[string]interface{}{{"success": true}}, nil
		})

		require.NoError(t, svc.ImportAddress(ctx, "w1", "bcrt1qaddr", "shop"))
		require.Equal(t, "/", n.lastPath("getdescriptorinfo"))
		require.Equal(t, "/wallet/w1", n.lastPath("importdescriptors"))
		require.Equal(t, []importDescriptorRequest{{
			Desc: "addr(bcrt1qaddr)#abcdefgh", Timestamp: "now", Label: "shop",
		}}, imported)

		n.handle("importdescriptors", staticResult([]map[string]interface{}{{
			"success": false,
			"error":   map[string]interface{}{"code": -5, "message": "Invalid address"},
		}}))
		err := svc.ImportAddress(ctx, "w1", "bcrt1qaddr", "shop")
		var rpcErr *ports.RPCError
		require.ErrorAs(t, err, &rpcErr)
		require.Equal(t, -5, rpcErr.Code)
	})

	t.Run("ListTransactions", func(t *testing.T) {
		n := newFakeNode(t)
		svc := newTestService(t, n)

		var label string
		n.handle("listtransactions", func(_ string, params []json.RawMessage) (interface{}, *rpcErr) {
			json.Unmarshal(params[0], &label)
			return []map[string]interface{}{
				{
					"txid": "t1", "address": "bcrt1qaddr", "label": "shop",
					"category": "receive", "amount": 0.0005, "confirmations": 3,
					"blockhash": "h", "blockheight": 101, "time": 1700000000,
				},
				{
					"txid": "t2", "address": "bcrt1qdest", "category": "send",
					"amount": -0.0004, "fee": -0.0000055, "confirmations": 1,
				},
			}, nil
		})

		txs, err := svc.ListTransactions(ctx, "w1", "", 10, 0)
		require.NoError(t, err)
		require.Equal(t, "*", label)
		require.Equal(t, "/wallet/w1", n.lastPath("listtransactions"))
		require.Len(t, txs, 2)
		require.Equal(t, int64(50000), txs[0].Amount)
		require.Equal(t, uint32(101), txs[0].BlockHeight)
		require.Equal(t, int64(-40000), txs[1].Amount)
		require.Equal(t, int64(-550), txs[1].Fee)
	})
}
