package dbbadger

import (
	"context"

	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const (
	processedBlockKey = "processed_block"
	feeRateKey        = "fee_rate"
)

type chainStateRepository struct {
	store *badgerhold.Store
}

func newChainStateRepository(store *badgerhold.Store) domain.ChainStateRepository {
	return &chainStateRepository{store}
}

func (r *chainStateRepository) GetProcessedBlock(
	_ context.Context,
) (*domain.ProcessedBlock, error) {
	var block domain.ProcessedBlock
	if err := r.store.Get(processedBlockKey, &block); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrNoProcessedBlock
		}
		return nil, err
	}
	return &block, nil
}

func (r *chainStateRepository) SetProcessedBlock(
	_ context.Context, block domain.ProcessedBlock,
) error {
	return r.store.Upsert(processedBlockKey, block)
}

func (r *chainStateRepository) GetFeeRate(
	_ context.Context,
) (*domain.FeeRate, error) {
	var feeRate domain.FeeRate
	if err := r.store.Get(feeRateKey, &feeRate); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrFeeRateNotInitialized
		}
		return nil, err
	}
	return &feeRate, nil
}

func (r *chainStateRepository) SetFeeRate(
	_ context.Context, feeRate domain.FeeRate,
) error {
	return r.store.Upsert(feeRateKey, feeRate)
}
