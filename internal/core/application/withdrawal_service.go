package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/gate"
	"github.com/tdex-network/btcledger/pkg/mathutil"
	"github.com/tdex-network/btcledger/pkg/stats"
	"github.com/tdex-network/btcledger/pkg/wallet"
)

const (
	withdrawalBroadcasted = "broadcasted"
	withdrawalNoop        = "noop"
	withdrawalFailed      = "failed"
)

// WithdrawalService sweeps the funds of a wallet to an external address.
type WithdrawalService interface {
	// Withdraw spends all the active utxos of the wallet to the destination
	// and returns the id of the broadcasted transaction. It returns an empty
	// txid with no error if the wallet has nothing to spend.
	Withdraw(ctx context.Context, walletName, destination string) (string, error)
}

type WithdrawalOpts struct {
	DustThreshold        uint64
	MaxFeeRateMultiplier float64
	// DisableFeeCheck skips the fee ceiling check of the transactions.
	// It's unsafe and meant only for recovery purposes.
	DisableFeeCheck bool
}

type withdrawalService struct {
	repoManager ports.RepoManager
	chain       ports.ChainClient
	gate        *gate.Gate
	network     *chaincfg.Params
	metrics     *stats.Metrics
	opts        WithdrawalOpts
}

func NewWithdrawalService(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	g *gate.Gate,
	network *chaincfg.Params,
	metrics *stats.Metrics,
	opts WithdrawalOpts,
) WithdrawalService {
	return newWithdrawalService(repoManager, chain, g, network, metrics, opts)
}

func newWithdrawalService(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	g *gate.Gate,
	network *chaincfg.Params,
	metrics *stats.Metrics,
	opts WithdrawalOpts,
) *withdrawalService {
	if opts.DustThreshold == 0 {
		opts.DustThreshold = wallet.DefaultDustThreshold
	}
	if opts.MaxFeeRateMultiplier <= 0 {
		opts.MaxFeeRateMultiplier = wallet.DefaultMaxFeeRateMultiplier
	}
	return &withdrawalService{
		repoManager: repoManager,
		chain:       chain,
		gate:        g,
		network:     network,
		metrics:     metrics,
		opts:        opts,
	}
}

func (s *withdrawalService) Withdraw(
	ctx context.Context, walletName, destination string,
) (string, error) {
	if walletName == "" {
		return "", domain.ErrNullWalletName
	}
	if destination == "" {
		return "", ErrNullDestinationAddress
	}

	var txid string
	err := s.gate.Run(ctx, func(ctx context.Context) error {
		var err error
		txid, err = s.withdraw(ctx, walletName, destination)
		return err
	})

	switch {
	case err != nil:
		s.metrics.Withdrawal(withdrawalFailed)
		return "", err
	case txid == "":
		s.metrics.Withdrawal(withdrawalNoop)
	default:
		s.metrics.Withdrawal(withdrawalBroadcasted)
	}
	return txid, nil
}

func (s *withdrawalService) withdraw(
	ctx context.Context, walletName, destination string,
) (string, error) {
	logger := log.WithField("wallet", walletName)

	if _, err := s.repoManager.WalletRepository().GetWallet(
		ctx, walletName,
	); err != nil {
		return "", err
	}
	feeRate, err := s.repoManager.ChainStateRepository().GetFeeRate(ctx)
	if err != nil {
		return "", err
	}

	utxos, err := s.repoManager.UtxoRepository().GetActiveUtxosForWallet(
		ctx, walletName,
	)
	if err != nil {
		return "", err
	}
	if len(utxos) <= 0 {
		logger.Debug("no utxos to withdraw")
		return "", nil
	}

	addresses, err := s.repoManager.AddressRepository().GetAddresses(
		ctx, addressKeysForUtxos(walletName, utxos),
	)
	if err != nil {
		return "", err
	}
	if len(addresses) <= 0 {
		logger.Warn("no addresses found for utxos to withdraw")
		return "", nil
	}

	// Utxos of unresolved addresses can't be signed, they're left untouched.
	resolved := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		resolved[addr.Label] = struct{}{}
	}
	spendable := make([]domain.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if _, ok := resolved[u.Label]; ok {
			spendable = append(spendable, u)
		}
	}
	if len(spendable) < len(utxos) {
		logger.Warnf(
			"skipping %d utxos with unknown address", len(utxos)-len(spendable),
		)
	}

	inputs := inputsFromUtxos(spendable)
	fee, err := wallet.EstimateSweepFee(wallet.EstimateSweepFeeOpts{
		Inputs:        inputs,
		Destination:   destination,
		FeeRate:       feeRate.SatsPerVByte,
		DustThreshold: s.opts.DustThreshold,
		Network:       s.network,
	})
	if err != nil {
		if errors.Is(err, wallet.ErrNoSpendableInputs) {
			logger.Debug("only dust utxos to withdraw")
			return "", nil
		}
		return "", err
	}

	total := uint64(0)
	for _, in := range wallet.SelectSpendableInputs(inputs, s.opts.DustThreshold) {
		total += in.Amount
	}
	if total <= fee {
		return "", fmt.Errorf(
			"%w: %d sats available, %d sats of fees",
			wallet.ErrInsufficientFunds, total, fee,
		)
	}

	keys := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		keys = append(keys, addr.WIF)
	}

	var txid string
	if err := withWallet(ctx, s.chain, walletName, func(ctx context.Context) error {
		tx, err := wallet.CreateTransaction(wallet.CreateTransactionOpts{
			Inputs:               inputs,
			Keys:                 keys,
			Destination:          destination,
			Amount:               total - fee,
			FeeRate:              feeRate.SatsPerVByte,
			DustThreshold:        s.opts.DustThreshold,
			MaxFeeRateMultiplier: s.opts.MaxFeeRateMultiplier,
			DisableFeeCheck:      s.opts.DisableFeeCheck,
			Network:              s.network,
		})
		if err != nil {
			return err
		}

		txid, err = s.chain.BroadcastTransaction(ctx, tx.TxHex)
		if err != nil {
			return fmt.Errorf("failed to broadcast withdrawal: %w", err)
		}
		if txid == "" {
			txid = tx.TxID
		}

		spent := make([]domain.UtxoKey, 0, len(tx.Inputs))
		for _, in := range tx.Inputs {
			spent = append(spent, domain.UtxoKey{TxID: in.TxID, VOut: in.VOut})
		}
		count, err := s.repoManager.UtxoRepository().DeactivateUtxos(ctx, spent)
		if err != nil {
			return fmt.Errorf(
				"failed to deactivate utxos spent by broadcasted tx %s: %w",
				txid, err,
			)
		}
		if count != len(spent) {
			logger.Warnf(
				"deactivated %d out of %d utxos spent by tx %s",
				count, len(spent), txid,
			)
		}

		logger.WithFields(log.Fields{
			"txid":   txid,
			"inputs": len(spent),
			"amount": mathutil.ToBTC(total - fee).String(),
			"fee":    tx.Fee,
		}).Info("broadcasted withdrawal")
		return nil
	}); err != nil {
		return "", err
	}

	return txid, nil
}

func addressKeysForUtxos(
	walletName string, utxos []domain.Utxo,
) []domain.ChildAddressKey {
	seen := make(map[string]struct{})
	keys := make([]domain.ChildAddressKey, 0)
	for _, u := range utxos {
		if _, ok := seen[u.Label]; ok {
			continue
		}
		seen[u.Label] = struct{}{}
		keys = append(keys, domain.ChildAddressKey{
			WalletName: walletName,
			Label:      u.Label,
		})
	}
	return keys
}

func inputsFromUtxos(utxos []domain.Utxo) []wallet.Input {
	inputs := make([]wallet.Input, 0, len(utxos))
	for _, u := range utxos {
		inputs = append(inputs, wallet.Input{
			TxID:    u.TxID,
			VOut:    u.VOut,
			Amount:  u.Amount,
			Script:  u.Script,
			Address: u.Address,
		})
	}
	return inputs
}
