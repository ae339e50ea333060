package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// DerivationPath is the internal representation of a hierarchical
// deterministic key path
type DerivationPath []uint32

var (
	// DefaultChildDerivationPath m/0'/0 is the branch under which child
	// deposit keys are derived from a root key
	DefaultChildDerivationPath = DerivationPath{
		hdkeychain.HardenedKeyStart + 0,
		0,
	}
)

// ChildDerivationPath returns the full path of the child key at index.
func ChildDerivationPath(index uint32) DerivationPath {
	path := make(DerivationPath, 0, len(DefaultChildDerivationPath)+1)
	path = append(path, DefaultChildDerivationPath...)
	return append(path, index)
}

// String converts a binary derivation path to its canonical representation
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= hdkeychain.HardenedKeyStart {
			component -= hdkeychain.HardenedKeyStart
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}
