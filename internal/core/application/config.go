package application

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/gate"
	"github.com/tdex-network/btcledger/pkg/stats"
)

const walletGateName = "wallet"

type Config struct {
	RepoManager ports.RepoManager
	ChainClient ports.ChainClient
	ScanCache   ports.ScanCache
	Metrics     *stats.Metrics
	Network     *chaincfg.Params

	LockWaitTimeout      time.Duration
	LockExecutionTimeout time.Duration
	DustThreshold        uint64
	MaxFeeRateMultiplier float64
	FeeTargetBlocks      uint32
	FeeRefreshInterval   time.Duration
	PollInterval         time.Duration
	PollRateLimit        int
	StartHeight          uint32

	gate       *gate.Gate
	wallet     WalletService
	reconciler BlockReconciler
	withdrawal WithdrawalService
	fee        FeeService
	listener   BlockchainListener
}

func (c *Config) Validate() error {
	if c.RepoManager == nil {
		return ErrMissingRepoManager
	}
	if c.ChainClient == nil {
		return ErrMissingChainClient
	}
	if c.Network == nil {
		return ErrMissingNetwork
	}
	if c.ScanCache == nil {
		return ErrMissingScanCache
	}
	return nil
}

// Gate returns the lock shared by all the services operating on node
// wallets.
func (c *Config) Gate() *gate.Gate {
	if c.gate == nil {
		c.gate = gate.New(
			walletGateName, c.LockWaitTimeout, c.LockExecutionTimeout,
		)
	}
	return c.gate
}

func (c *Config) WalletService() WalletService {
	if c.wallet == nil {
		c.wallet = NewWalletService(
			c.RepoManager, c.ChainClient, c.ScanCache, c.Gate(), c.Network,
		)
	}
	return c.wallet
}

func (c *Config) BlockReconciler() BlockReconciler {
	if c.reconciler == nil {
		c.reconciler = NewBlockReconciler(c.RepoManager, c.ScanCache, c.Metrics)
	}
	return c.reconciler
}

func (c *Config) WithdrawalService() WithdrawalService {
	if c.withdrawal == nil {
		c.withdrawal = NewWithdrawalService(
			c.RepoManager, c.ChainClient, c.Gate(), c.Network, c.Metrics,
			WithdrawalOpts{
				DustThreshold:        c.DustThreshold,
				MaxFeeRateMultiplier: c.MaxFeeRateMultiplier,
			},
		)
	}
	return c.withdrawal
}

func (c *Config) FeeService() FeeService {
	if c.fee == nil {
		c.fee = NewFeeService(
			c.RepoManager, c.ChainClient, c.Metrics,
			c.FeeTargetBlocks, c.FeeRefreshInterval,
		)
	}
	return c.fee
}

func (c *Config) BlockchainListener() BlockchainListener {
	if c.listener == nil {
		c.listener = NewBlockchainListener(
			c.RepoManager, c.ChainClient, c.BlockReconciler(), ListenerOpts{
				PollInterval: c.PollInterval,
				RateLimit:    c.PollRateLimit,
				StartHeight:  c.StartHeight,
			},
		)
	}
	return c.listener
}
