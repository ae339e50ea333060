package domain

import "context"

// WalletRepository is the abstraction for RootWallet persistence. It also
// owns the per-wallet address derivation counter.
type WalletRepository interface {
	// AddWallet persists the given wallet if none exists with the same name.
	// It always returns the stored one and whether it has just been added.
	AddWallet(ctx context.Context, wallet RootWallet) (*RootWallet, bool, error)
	// GetWallet returns ErrWalletNotFound if not existing.
	GetWallet(ctx context.Context, name string) (*RootWallet, error)
	// ListWallets returns all the persisted wallets.
	ListWallets(ctx context.Context) ([]RootWallet, error)
	// NextAddressIndex atomically increments the address counter of the
	// wallet and returns the index to use. Indexes are never reused.
	NextAddressIndex(ctx context.Context, name string) (uint32, error)
}

// AddressRepository is the abstraction for ChildAddress persistence.
type AddressRepository interface {
	// AddAddress persists the given address if none exists for the same
	// wallet and label. It always returns the stored one and whether it has
	// just been added.
	AddAddress(ctx context.Context, address ChildAddress) (*ChildAddress, bool, error)
	// GetAddress returns ErrAddressNotFound if not existing.
	GetAddress(ctx context.Context, walletName, label string) (*ChildAddress, error)
	// GetAddresses returns the addresses matching the given keys, unknown
	// keys are skipped.
	GetAddresses(ctx context.Context, keys []ChildAddressKey) ([]ChildAddress, error)
	GetAddressesForWallet(ctx context.Context, walletName string) ([]ChildAddress, error)
	GetAllAddresses(ctx context.Context) ([]ChildAddress, error)
}
