package ports

import (
	"context"
	"fmt"
)

// Error codes returned by the node that are relevant for the ledger.
const (
	RPCWalletError            = -4
	RPCWalletInvalidLabelName = -11
	RPCWalletNotFound         = -18
	RPCWalletAlreadyLoaded    = -35
	RPCWalletAlreadyExists    = -36
)

// RPCError is an error returned by the node, carrying its code.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ChainClient is the abstraction for any kind of service able to read blocks
// from the bitcoin network, broadcast transactions and track addresses in
// watch-only node wallets.
//
// Wallet-scoped methods require the wallet to be loaded. Benign failures such
// as loading an already loaded wallet are not reported as errors.
type ChainClient interface {
	GetBlockCount(ctx context.Context) (uint32, error)
	GetBlockHash(ctx context.Context, height uint32) (string, error)
	// GetBlock returns the block with the given hash, including the full
	// details of its transactions.
	GetBlock(ctx context.Context, hash string) (*Block, error)
	BroadcastTransaction(ctx context.Context, txHex string) (string, error)
	// EstimateFeeRate returns the fee rate in sats/vbyte for a transaction to
	// be confirmed within the given number of blocks.
	EstimateFeeRate(ctx context.Context, targetBlocks uint32) (uint64, error)

	ListLoadedWallets(ctx context.Context) ([]string, error)
	LoadWallet(ctx context.Context, name string) error
	UnloadWallet(ctx context.Context, name string) error
	CreateWallet(ctx context.Context, name string) error
	ImportAddress(ctx context.Context, wallet, address, label string) error
	ListTransactions(
		ctx context.Context, wallet, label string, count, skip int,
	) ([]WalletTransaction, error)
}

// Block is a block with the relevant info of its transactions.
type Block struct {
	Hash         string
	Height       uint32
	Time         int64
	PreviousHash string
	NextHash     string
	Transactions []Transaction
}

// Transaction ...
type Transaction struct {
	TxID    string
	Inputs  []TxInput
	Outputs []TxOutput
}

// TxInput refers to the output spent by a transaction input.
type TxInput struct {
	TxID     string
	VOut     uint32
	Coinbase bool
}

// TxOutput ...
type TxOutput struct {
	N      uint32
	Amount uint64
	Script string
	// Address is empty for non standard scripts.
	Address string
}

// WalletTransaction is an entry of the transaction history of a node wallet.
type WalletTransaction struct {
	TxID     string
	Address  string
	Label    string
	Category string
	// Amount in sats, negative for sends.
	Amount        int64
	Fee           int64
	Confirmations int64
	BlockHash     string
	BlockHeight   uint32
	Time          int64
}
