package domain

import "context"

// ChainStateRepository holds the scalars tracking the ledger sync status.
type ChainStateRepository interface {
	// GetProcessedBlock returns ErrNoProcessedBlock if nothing was
	// reconciled yet.
	GetProcessedBlock(ctx context.Context) (*ProcessedBlock, error)
	SetProcessedBlock(ctx context.Context, block ProcessedBlock) error
	// GetFeeRate returns ErrFeeRateNotInitialized if never set.
	GetFeeRate(ctx context.Context) (*FeeRate, error)
	SetFeeRate(ctx context.Context, feeRate FeeRate) error
}
