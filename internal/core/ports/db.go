package ports

import "github.com/tdex-network/btcledger/internal/core/domain"

// RepoManager interface defines the methods for wallet, address, utxo and
// chain state.
type RepoManager interface {
	WalletRepository() domain.WalletRepository
	AddressRepository() domain.AddressRepository
	UtxoRepository() domain.UtxoRepository
	ChainStateRepository() domain.ChainStateRepository

	Close()
}
