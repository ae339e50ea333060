package domain

import "context"

// UtxoRepository is the abstraction for Utxo persistence.
type UtxoRepository interface {
	// ApplyChanges adds (overwriting by key) and deletes the given utxos in
	// one atomic transaction.
	ApplyChanges(ctx context.Context, added []Utxo, removed []UtxoKey) error
	// DeactivateUtxos marks the given utxos as inactive and returns the
	// number of those actually updated.
	DeactivateUtxos(ctx context.Context, keys []UtxoKey) (int, error)
	GetUtxo(ctx context.Context, key UtxoKey) (*Utxo, error)
	GetAllActiveUtxos(ctx context.Context) ([]Utxo, error)
	GetActiveUtxosForWallet(ctx context.Context, walletName string) ([]Utxo, error)
	GetActiveUtxosForAddress(
		ctx context.Context, walletName, label string,
	) ([]Utxo, error)
	// GetUtxosByBlockHeight returns all utxos, active or not, confirmed in
	// the block range [from, to].
	GetUtxosByBlockHeight(ctx context.Context, from, to uint32) ([]Utxo, error)
}
