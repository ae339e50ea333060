package wallet

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/tdex-network/btcledger/pkg/mathutil"
)

const txVersion = 2

// Input is a spendable output used as input of a new transaction.
type Input struct {
	TxID   string
	VOut   uint32
	Amount uint64
	// Script is the hex encoded locking script of the output. If empty, it is
	// derived from Address.
	Script  string
	Address string
}

// CreateTransactionOpts is the struct given to CreateTransaction method
type CreateTransactionOpts struct {
	// Inputs are the candidate outputs to spend. Those at or below the dust
	// threshold are never selected.
	Inputs []Input
	// Keys are the private keys (WIF) used to sign the selected inputs.
	// They are matched to inputs by address, case-insensitively.
	Keys          []string
	Destination   string
	Amount        uint64
	ChangeAddress string
	// FeeRate in sats/vbyte.
	FeeRate uint64
	// DustThreshold defaults to DefaultDustThreshold if zero.
	DustThreshold uint64
	// MaxFeeRateMultiplier defaults to DefaultMaxFeeRateMultiplier if zero.
	MaxFeeRateMultiplier float64
	// DisableFeeCheck skips the fee ceiling check. Unsafe, a bad fee rate
	// could burn funds in fees.
	DisableFeeCheck bool
	Network         *chaincfg.Params
}

func (o *CreateTransactionOpts) validate() error {
	if o.Network == nil {
		return ErrNullNetwork
	}
	if o.Destination == "" {
		return ErrNullDestinationAddress
	}
	if o.Amount == 0 {
		return ErrZeroOutputAmount
	}
	if o.Amount > btcutil.MaxSatoshi {
		return ErrOutOfRangeAmount
	}
	if o.FeeRate == 0 {
		return ErrZeroFeeRate
	}
	if o.DustThreshold == 0 {
		o.DustThreshold = DefaultDustThreshold
	}
	if o.MaxFeeRateMultiplier <= 0 {
		o.MaxFeeRateMultiplier = DefaultMaxFeeRateMultiplier
	}
	if o.Amount <= o.DustThreshold {
		return ErrDustOutputAmount
	}
	return nil
}

// CreateTransactionResult is the struct returned by CreateTransaction method
type CreateTransactionResult struct {
	TxHex string
	TxID  string
	// Inputs are those actually spent by the transaction.
	Inputs       []Input
	Fee          uint64
	ChangeAmount uint64
	VirtualSize  int
}

// CreateTransaction builds and signs a transaction that sends Amount to the
// destination address, spending all non-dust inputs. If the leftover is
// above the dust threshold it's sent back to the change address, otherwise
// it's added to the network fees.
func CreateTransaction(opts CreateTransactionOpts) (*CreateTransactionResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	inputs := SelectSpendableInputs(opts.Inputs, opts.DustThreshold)
	if len(inputs) <= 0 {
		return nil, ErrNoSpendableInputs
	}

	secrets, err := newSecretsSource(opts.Keys, opts.Network)
	if err != nil {
		return nil, err
	}

	prevScripts := make([][]byte, 0, len(inputs))
	inputValues := make([]btcutil.Amount, 0, len(inputs))
	totalInput := uint64(0)
	for _, in := range inputs {
		if !secrets.hasAddress(in.Address) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, in.Address)
		}
		script, err := in.script(opts.Network)
		if err != nil {
			return nil, err
		}
		prevScripts = append(prevScripts, script)
		inputValues = append(inputValues, btcutil.Amount(in.Amount))
		totalInput += in.Amount
	}

	destScript, err := addressScript(opts.Destination, opts.Network)
	if err != nil {
		return nil, ErrInvalidDestinationAddress
	}
	outputs := []*wire.TxOut{wire.NewTxOut(int64(opts.Amount), destScript)}

	// A missing change address is an error only if change is required, its
	// size is estimated as P2WPKH in that case.
	var changeScript []byte
	changeScriptSize := txsizes.P2WPKHPkScriptSize
	if opts.ChangeAddress != "" {
		changeScript, err = addressScript(opts.ChangeAddress, opts.Network)
		if err != nil {
			return nil, ErrInvalidChangeAddress
		}
		changeScriptSize = len(changeScript)
	}

	feeWithoutChange, err := estimateFee(inputs, outputs, 0, opts.FeeRate, opts.Network)
	if err != nil {
		return nil, err
	}
	if totalInput < opts.Amount+feeWithoutChange {
		return nil, ErrInsufficientFunds
	}
	feeWithChange, err := estimateFee(
		inputs, outputs, changeScriptSize, opts.FeeRate, opts.Network,
	)
	if err != nil {
		return nil, err
	}

	fee := totalInput - opts.Amount
	changeAmount := uint64(0)
	if totalInput > opts.Amount+feeWithChange {
		if change := totalInput - opts.Amount - feeWithChange; change > opts.DustThreshold {
			if changeScript == nil {
				return nil, ErrMissingChangeAddress
			}
			changeAmount = change
			fee = feeWithChange
			outputs = append(outputs, wire.NewTxOut(int64(change), changeScript))
		}
	}

	tx := wire.NewMsgTx(txVersion)
	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid input txid %s: %w", in.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.VOut), nil, nil))
	}
	for _, out := range outputs {
		tx.AddTxOut(out)
	}

	if err := txauthor.AddAllInputScripts(
		tx, prevScripts, inputValues, secrets,
	); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	vsize := int((weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor)

	if !opts.DisableFeeCheck {
		ceiling := mathutil.MulCeil(opts.FeeRate*uint64(vsize), opts.MaxFeeRateMultiplier)
		if fee > ceiling {
			return nil, fmt.Errorf(
				"%w: fee %d sats over %d vbytes, ceiling %d sats",
				ErrFeeCeilingExceeded, fee, vsize, ceiling,
			)
		}
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}

	return &CreateTransactionResult{
		TxHex:        hex.EncodeToString(buf.Bytes()),
		TxID:         tx.TxHash().String(),
		Inputs:       inputs,
		Fee:          fee,
		ChangeAmount: changeAmount,
		VirtualSize:  vsize,
	}, nil
}

// EstimateSweepFeeOpts is the struct given to EstimateSweepFee method
type EstimateSweepFeeOpts struct {
	Inputs        []Input
	Destination   string
	FeeRate       uint64
	DustThreshold uint64
	Network       *chaincfg.Params
}

// EstimateSweepFee returns the worst case network fee for a transaction
// spending all non-dust inputs to the destination address, without change.
func EstimateSweepFee(opts EstimateSweepFeeOpts) (uint64, error) {
	if opts.Network == nil {
		return 0, ErrNullNetwork
	}
	if opts.FeeRate == 0 {
		return 0, ErrZeroFeeRate
	}
	if opts.DustThreshold == 0 {
		opts.DustThreshold = DefaultDustThreshold
	}
	inputs := SelectSpendableInputs(opts.Inputs, opts.DustThreshold)
	if len(inputs) <= 0 {
		return 0, ErrNoSpendableInputs
	}
	destScript, err := addressScript(opts.Destination, opts.Network)
	if err != nil {
		return 0, ErrInvalidDestinationAddress
	}
	// Output value does not affect the size.
	outputs := []*wire.TxOut{wire.NewTxOut(0, destScript)}
	return estimateFee(inputs, outputs, 0, opts.FeeRate, opts.Network)
}

// SelectSpendableInputs returns the inputs whose amount is above the dust
// threshold.
func SelectSpendableInputs(inputs []Input, dustThreshold uint64) []Input {
	selected := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		if in.Amount > dustThreshold {
			selected = append(selected, in)
		}
	}
	return selected
}

func (i Input) script(network *chaincfg.Params) ([]byte, error) {
	if i.Script != "" {
		script, err := hex.DecodeString(i.Script)
		if err != nil {
			return nil, ErrInvalidInputScript
		}
		return script, nil
	}
	return addressScript(i.Address, network)
}

func estimateFee(
	inputs []Input, outputs []*wire.TxOut, changeScriptSize int,
	feeRate uint64, network *chaincfg.Params,
) (uint64, error) {
	var numP2PKH, numP2TR, numP2WPKH, numNested int
	for _, in := range inputs {
		script, err := in.script(network)
		if err != nil {
			return 0, err
		}
		switch {
		case txscript.IsPayToWitnessPubKeyHash(script):
			numP2WPKH++
		case txscript.IsPayToTaproot(script):
			numP2TR++
		case txscript.IsPayToScriptHash(script):
			numNested++
		default:
			numP2PKH++
		}
	}

	vsize := txsizes.EstimateVirtualSize(
		numP2PKH, numP2TR, numP2WPKH, numNested, outputs, changeScriptSize,
	)
	feePerKvB := btcutil.Amount(feeRate * 1000)
	return uint64(txrules.FeeForSerializeSize(feePerKvB, vsize)), nil
}

func addressScript(address string, network *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, network)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(network) {
		return nil, fmt.Errorf("address %s is not for network %s", address, network.Name)
	}
	return txscript.PayToAddrScript(addr)
}

// secretsSource resolves signing keys by address for txauthor.
type secretsSource struct {
	keys    map[string]*btcutil.WIF
	network *chaincfg.Params
}

func newSecretsSource(wifs []string, network *chaincfg.Params) (*secretsSource, error) {
	keys := make(map[string]*btcutil.WIF, len(wifs))
	for _, str := range wifs {
		wif, err := btcutil.DecodeWIF(str)
		if err != nil {
			return nil, ErrInvalidWIF
		}
		addr, err := p2wpkhAddress(wif.PrivKey.PubKey(), network)
		if err != nil {
			return nil, err
		}
		keys[strings.ToLower(addr)] = wif
	}
	return &secretsSource{keys, network}, nil
}

func (s *secretsSource) hasAddress(addr string) bool {
	_, ok := s.keys[strings.ToLower(addr)]
	return ok
}

func (s *secretsSource) GetKey(addr btcutil.Address) (*btcec.PrivateKey, bool, error) {
	wif, ok := s.keys[strings.ToLower(addr.EncodeAddress())]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrKeyNotFound, addr.EncodeAddress())
	}
	return wif.PrivKey, wif.CompressPubKey, nil
}

func (s *secretsSource) GetScript(addr btcutil.Address) ([]byte, error) {
	return nil, fmt.Errorf("no redeem script for address %s", addr.EncodeAddress())
}

func (s *secretsSource) ChainParams() *chaincfg.Params {
	return s.network
}
