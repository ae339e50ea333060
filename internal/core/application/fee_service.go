package application

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/stats"
)

const (
	DefaultFeeTargetBlocks    = 6
	DefaultFeeRefreshInterval = 10 * time.Minute
)

// FeeService periodically refreshes the fee rate used for withdrawals with
// the estimate of the node.
type FeeService interface {
	Start()
	Stop()
	UpdateFeeRate(ctx context.Context) (uint64, error)
}

type feeService struct {
	repoManager  ports.RepoManager
	chain        ports.ChainClient
	metrics      *stats.Metrics
	targetBlocks uint32
	interval     time.Duration

	lock   *sync.Mutex
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewFeeService(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	metrics *stats.Metrics,
	targetBlocks uint32,
	interval time.Duration,
) FeeService {
	return newFeeService(repoManager, chain, metrics, targetBlocks, interval)
}

func newFeeService(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	metrics *stats.Metrics,
	targetBlocks uint32,
	interval time.Duration,
) *feeService {
	if targetBlocks == 0 {
		targetBlocks = DefaultFeeTargetBlocks
	}
	if interval <= 0 {
		interval = DefaultFeeRefreshInterval
	}
	return &feeService{
		repoManager:  repoManager,
		chain:        chain,
		metrics:      metrics,
		targetBlocks: targetBlocks,
		interval:     interval,
		lock:         &sync.Mutex{},
		wg:           &sync.WaitGroup{},
	}
}

// Start updates the fee rate right away and then at every interval, until
// Stop is called. Failures are logged and retried at next interval.
func (s *feeService) Start() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			if _, err := s.UpdateFeeRate(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("failed to update fee rate")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	log.Debug("fee updater started")
}

func (s *feeService) Stop() {
	s.lock.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	log.Debug("fee updater stopped")
}

func (s *feeService) UpdateFeeRate(ctx context.Context) (uint64, error) {
	satsPerVByte, err := s.chain.EstimateFeeRate(ctx, s.targetBlocks)
	if err != nil {
		return 0, err
	}

	if err := s.repoManager.ChainStateRepository().SetFeeRate(ctx, domain.FeeRate{
		SatsPerVByte: satsPerVByte,
		UpdatedAt:    time.Now().Unix(),
	}); err != nil {
		return 0, err
	}

	s.metrics.FeeRateUpdated(satsPerVByte)
	log.WithField("sats_per_vbyte", satsPerVByte).Debug("updated fee rate")
	return satsPerVByte, nil
}
