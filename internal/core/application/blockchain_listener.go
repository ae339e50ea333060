package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"go.uber.org/ratelimit"
)

const DefaultPollInterval = 10 * time.Second

// BlockchainListener defines the methods to start and stop polling the
// chain for new blocks to reconcile.
type BlockchainListener interface {
	ObserveBlockchain()
	StopObserveBlockchain()
	// Sync reconciles all blocks following the last processed one up to the
	// tip of the chain and returns the number of processed blocks.
	Sync(ctx context.Context) (int, error)
}

type ListenerOpts struct {
	PollInterval time.Duration
	// RateLimit is the max number of blocks fetched per second, 0 means
	// unlimited.
	RateLimit int
	// StartHeight is the height of the first block to process if none was
	// processed yet, 0 means the current tip.
	StartHeight uint32
}

type blockchainListener struct {
	repoManager ports.RepoManager
	chain       ports.ChainClient
	reconciler  BlockReconciler
	limiter     ratelimit.Limiter
	opts        ListenerOpts

	lock   *sync.Mutex
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// NewBlockchainListener returns a BlockchainListener with all the needed services
func NewBlockchainListener(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	reconciler BlockReconciler,
	opts ListenerOpts,
) BlockchainListener {
	return newBlockchainListener(repoManager, chain, reconciler, opts)
}

func newBlockchainListener(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	reconciler BlockReconciler,
	opts ListenerOpts,
) *blockchainListener {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	limiter := ratelimit.NewUnlimited()
	if opts.RateLimit > 0 {
		limiter = ratelimit.New(opts.RateLimit)
	}
	return &blockchainListener{
		repoManager: repoManager,
		chain:       chain,
		reconciler:  reconciler,
		limiter:     limiter,
		opts:        opts,
		lock:        &sync.Mutex{},
		wg:          &sync.WaitGroup{},
	}
}

func (b *blockchainListener) ObserveBlockchain() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(1)
	go b.observe(ctx)
	log.Info("blockchain listener started")
}

func (b *blockchainListener) StopObserveBlockchain() {
	b.lock.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	b.wg.Wait()
	log.Info("blockchain listener stopped")
}

func (b *blockchainListener) observe(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		if count, err := b.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warnf(
				"sync stopped after %d blocks, retrying in %s",
				count, b.opts.PollInterval,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *blockchainListener) Sync(ctx context.Context) (int, error) {
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		block, err := b.nextBlock(ctx)
		if err != nil {
			return count, err
		}
		if block == nil {
			return count, nil
		}

		if _, err := b.reconciler.ProcessBlock(ctx, block); err != nil {
			return count, err
		}
		count++
	}
}

// nextBlock returns the block following the last processed one, or nil if
// that's the tip of the chain.
func (b *blockchainListener) nextBlock(ctx context.Context) (*ports.Block, error) {
	processed, err := b.repoManager.ChainStateRepository().GetProcessedBlock(ctx)
	if err != nil {
		if err != domain.ErrNoProcessedBlock {
			return nil, err
		}
		return b.firstBlock(ctx)
	}

	b.limiter.Take()
	last, err := b.chain.GetBlock(ctx, processed.Hash)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to get processed block %s: %w", processed.Hash, err,
		)
	}
	if last.NextHash == "" {
		return nil, nil
	}

	b.limiter.Take()
	block, err := b.chain.GetBlock(ctx, last.NextHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", last.NextHash, err)
	}
	return block, nil
}

func (b *blockchainListener) firstBlock(ctx context.Context) (*ports.Block, error) {
	height := b.opts.StartHeight
	if height == 0 {
		tip, err := b.chain.GetBlockCount(ctx)
		if err != nil {
			return nil, err
		}
		height = tip
	}

	hash, err := b.chain.GetBlockHash(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("failed to get hash of block %d: %w", height, err)
	}

	b.limiter.Take()
	block, err := b.chain.GetBlock(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", hash, err)
	}
	log.WithField("height", height).Info("starting sync")
	return block, nil
}
