package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullDestinationAddress ...
	ErrNullDestinationAddress = errors.New("destination address must not be null")
	// ErrMissingChangeAddress ...
	ErrMissingChangeAddress = errors.New(
		"change address is required when the transaction has change",
	)

	// ErrInvalidWIF ...
	ErrInvalidWIF = errors.New("private key must be a valid WIF string")
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher must be in base64 format")
	// ErrInvalidDestinationAddress ...
	ErrInvalidDestinationAddress = errors.New(
		"destination address must be a valid address for the network",
	)
	// ErrInvalidChangeAddress ...
	ErrInvalidChangeAddress = errors.New(
		"change address must be a valid address for the network",
	)
	// ErrInvalidInputScript ...
	ErrInvalidInputScript = errors.New("input script must be a valid hex string")
	// ErrInvalidNetwork ...
	ErrInvalidNetwork = errors.New("unknown network")
	// ErrOutOfRangeIndex ...
	ErrOutOfRangeIndex = errors.New("child index must be a non hardened index")

	// ErrNoSpendableInputs ...
	ErrNoSpendableInputs = errors.New("no inputs above the dust threshold")
	// ErrZeroOutputAmount ...
	ErrZeroOutputAmount = errors.New("output amount must not be zero")
	// ErrOutOfRangeAmount ...
	ErrOutOfRangeAmount = errors.New("output amount must not exceed 21M BTC")
	// ErrZeroFeeRate ...
	ErrZeroFeeRate = errors.New("fee rate must not be zero")
	// ErrDustOutputAmount ...
	ErrDustOutputAmount = errors.New("output amount must be above the dust threshold")
	// ErrInsufficientFunds ...
	ErrInsufficientFunds = errors.New(
		"inputs do not cover the output amount plus network fees",
	)
	// ErrKeyNotFound is returned when no given key matches an input's address.
	ErrKeyNotFound = errors.New("private key not found for input address")
	// ErrFeeCeilingExceeded is returned when the realized fee rate of a signed
	// transaction exceeds the configured ceiling.
	ErrFeeCeilingExceeded = errors.New("transaction fee exceeds fee rate ceiling")
)

const (
	// DefaultDustThreshold is the amount in satoshis at or below which an
	// output is considered not worth spending.
	DefaultDustThreshold = uint64(546)
	// DefaultMaxFeeRateMultiplier bounds the realized fee rate of a
	// transaction to this multiple of the requested one.
	DefaultMaxFeeRateMultiplier = float64(2)
)

// NetworkFromString returns the chain params for the given network name.
func NetworkFromString(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", "bitcoin", "mainnet3":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, name)
	}
}
