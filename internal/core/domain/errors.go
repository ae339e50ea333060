package domain

import "errors"

var (
	// ErrWalletNotFound ...
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrAddressNotFound ...
	ErrAddressNotFound = errors.New("wallet address not found")
	// ErrUtxoNotFound ...
	ErrUtxoNotFound = errors.New("utxo not found")
	// ErrFeeRateNotInitialized is returned when no fee estimate is stored yet.
	ErrFeeRateNotInitialized = errors.New("fee rate not initialized")
	// ErrNoProcessedBlock ...
	ErrNoProcessedBlock = errors.New("no block processed yet")
	// ErrNullWalletName ...
	ErrNullWalletName = errors.New("wallet name must not be null")
	// ErrNullLabel ...
	ErrNullLabel = errors.New("label must not be null")
	// ErrInvalidHeightRange ...
	ErrInvalidHeightRange = errors.New("block height range is invalid")
)
