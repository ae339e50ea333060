package domain

import "strings"

// RootWallet is the root keypair of a custodial wallet. It is created once
// per name and never changes afterwards.
type RootWallet struct {
	Name string
	// WIF is the private key, sensitive: it must never be logged.
	WIF       string
	Address   string
	CreatedAt int64
}

// ChildAddress is the deposit address derived from a RootWallet for a
// merchant label, at path m/0'/0/Index.
type ChildAddress struct {
	WalletName string
	Label      string
	Index      uint32
	// WIF is the derived private key, stored to sign without the root key.
	WIF       string
	Address   string
	CreatedAt int64
}

// ChildAddressKey identifies a ChildAddress.
type ChildAddressKey struct {
	WalletName string
	Label      string
}

// Key returns the identifier of the address.
func (a ChildAddress) Key() ChildAddressKey {
	return ChildAddressKey{a.WalletName, a.Label}
}

// NormalizeLabel returns the canonical, case-insensitive form of a label.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
