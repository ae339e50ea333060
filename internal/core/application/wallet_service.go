package application

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/gate"
	"github.com/tdex-network/btcledger/pkg/wallet"
)

// WalletService manages the lifecycle of root wallets and their labeled
// child addresses. Every operation touching the node wallets is serialized
// by the gate.
type WalletService interface {
	CreateWallet(ctx context.Context, name string) (*domain.RootWallet, error)
	CreateWalletAddress(
		ctx context.Context, name, label string,
	) (*domain.ChildAddress, error)
	GetWalletBalance(ctx context.Context, name string) (uint64, error)
	GetWalletAddressBalance(ctx context.Context, name, label string) (uint64, error)
	GetWalletAddress(
		ctx context.Context, name, label string,
	) (*domain.ChildAddress, error)
	ListWalletAddresses(ctx context.Context, name string) ([]domain.ChildAddress, error)
	ImportWalletAddresses(ctx context.Context, name string) (int, error)
	ListWalletTransactions(
		ctx context.Context, name, label string, count, skip int,
	) ([]ports.WalletTransaction, error)
}

type walletService struct {
	repoManager ports.RepoManager
	chain       ports.ChainClient
	cache       ports.ScanCache
	gate        *gate.Gate
	network     *chaincfg.Params
}

func NewWalletService(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	cache ports.ScanCache,
	g *gate.Gate,
	network *chaincfg.Params,
) WalletService {
	return newWalletService(repoManager, chain, cache, g, network)
}

func newWalletService(
	repoManager ports.RepoManager,
	chain ports.ChainClient,
	cache ports.ScanCache,
	g *gate.Gate,
	network *chaincfg.Params,
) *walletService {
	return &walletService{
		repoManager: repoManager,
		chain:       chain,
		cache:       cache,
		gate:        g,
		network:     network,
	}
}

func (w *walletService) CreateWallet(
	ctx context.Context, name string,
) (*domain.RootWallet, error) {
	if name == "" {
		return nil, domain.ErrNullWalletName
	}

	var res *domain.RootWallet
	if err := w.gate.Run(ctx, func(ctx context.Context) error {
		rootWallet, err := w.repoManager.WalletRepository().GetWallet(ctx, name)
		if err == nil {
			res = rootWallet
			return nil
		}
		if err != domain.ErrWalletNotFound {
			return err
		}

		keyPair, err := wallet.GenerateRoot(w.network)
		if err != nil {
			return err
		}

		// The node wallet might already exist, for example if a previous
		// attempt failed after creating it.
		if err := w.chain.CreateWallet(ctx, name); err != nil {
			return fmt.Errorf("failed to create node wallet %s: %w", name, err)
		}

		return withWallet(ctx, w.chain, name, func(ctx context.Context) error {
			stored, added, err := w.repoManager.WalletRepository().AddWallet(
				ctx, domain.RootWallet{
					Name:      name,
					WIF:       keyPair.WIF,
					Address:   keyPair.Address,
					CreatedAt: time.Now().Unix(),
				},
			)
			if err != nil {
				return err
			}
			if added {
				log.WithField("wallet", name).Info("created wallet")
			}
			res = stored
			return nil
		})
	}); err != nil {
		return nil, err
	}

	return res, nil
}

func (w *walletService) CreateWalletAddress(
	ctx context.Context, name, label string,
) (*domain.ChildAddress, error) {
	if name == "" {
		return nil, domain.ErrNullWalletName
	}
	label = domain.NormalizeLabel(label)
	if label == "" {
		return nil, domain.ErrNullLabel
	}

	var res *domain.ChildAddress
	if err := w.gate.Run(ctx, func(ctx context.Context) error {
		addrRepo := w.repoManager.AddressRepository()

		childAddress, err := addrRepo.GetAddress(ctx, name, label)
		if err == nil {
			res = childAddress
			return nil
		}
		if err != domain.ErrAddressNotFound {
			return err
		}

		rootWallet, err := w.repoManager.WalletRepository().GetWallet(ctx, name)
		if err != nil {
			return err
		}

		return withWallet(ctx, w.chain, name, func(ctx context.Context) error {
			index, err := w.repoManager.WalletRepository().NextAddressIndex(
				ctx, name,
			)
			if err != nil {
				return err
			}

			keyPair, err := wallet.DeriveChild(rootWallet.WIF, index, w.network)
			if err != nil {
				return err
			}

			if err := w.chain.ImportAddress(
				ctx, name, keyPair.Address, label,
			); err != nil {
				return fmt.Errorf(
					"failed to import address into node wallet %s: %w", name, err,
				)
			}

			stored, added, err := addrRepo.AddAddress(ctx, domain.ChildAddress{
				WalletName: name,
				Label:      label,
				Index:      index,
				WIF:        keyPair.WIF,
				Address:    keyPair.Address,
				CreatedAt:  time.Now().Unix(),
			})
			if err != nil {
				return err
			}

			trackAddress(w.cache, *stored)
			if added {
				log.WithFields(log.Fields{
					"wallet": name,
					"label":  label,
					"index":  index,
					"path":   wallet.ChildDerivationPath(index).String(),
				}).Info("created wallet address")
			}
			res = stored
			return nil
		})
	}); err != nil {
		return nil, err
	}

	return res, nil
}

func (w *walletService) GetWalletBalance(
	ctx context.Context, name string,
) (uint64, error) {
	var balance uint64
	if err := w.runInWallet(ctx, name, func(ctx context.Context) error {
		utxos, err := w.repoManager.UtxoRepository().GetActiveUtxosForWallet(
			ctx, name,
		)
		if err != nil {
			return err
		}
		balance = domain.Balance(utxos)
		return nil
	}); err != nil {
		return 0, err
	}
	return balance, nil
}

func (w *walletService) GetWalletAddressBalance(
	ctx context.Context, name, label string,
) (uint64, error) {
	label = domain.NormalizeLabel(label)
	if label == "" {
		return 0, domain.ErrNullLabel
	}

	var balance uint64
	if err := w.runInWallet(ctx, name, func(ctx context.Context) error {
		if _, err := w.repoManager.AddressRepository().GetAddress(
			ctx, name, label,
		); err != nil {
			return err
		}

		utxos, err := w.repoManager.UtxoRepository().GetActiveUtxosForAddress(
			ctx, name, label,
		)
		if err != nil {
			return err
		}
		balance = domain.Balance(utxos)
		return nil
	}); err != nil {
		return 0, err
	}
	return balance, nil
}

func (w *walletService) GetWalletAddress(
	ctx context.Context, name, label string,
) (*domain.ChildAddress, error) {
	if name == "" {
		return nil, domain.ErrNullWalletName
	}
	label = domain.NormalizeLabel(label)
	if label == "" {
		return nil, domain.ErrNullLabel
	}
	return w.repoManager.AddressRepository().GetAddress(ctx, name, label)
}

func (w *walletService) ListWalletAddresses(
	ctx context.Context, name string,
) ([]domain.ChildAddress, error) {
	if _, err := w.repoManager.WalletRepository().GetWallet(ctx, name); err != nil {
		return nil, err
	}
	return w.repoManager.AddressRepository().GetAddressesForWallet(ctx, name)
}

// ImportWalletAddresses imports again all the child addresses of the wallet
// into its node wallet, and returns how many have been imported.
func (w *walletService) ImportWalletAddresses(
	ctx context.Context, name string,
) (int, error) {
	count := 0
	if err := w.runInWallet(ctx, name, func(ctx context.Context) error {
		addresses, err := w.repoManager.AddressRepository().GetAddressesForWallet(
			ctx, name,
		)
		if err != nil {
			return err
		}

		for _, addr := range addresses {
			if err := w.chain.ImportAddress(
				ctx, name, addr.Address, addr.Label,
			); err != nil {
				return fmt.Errorf(
					"failed to import address for label %s: %w", addr.Label, err,
				)
			}
			count++
		}
		return nil
	}); err != nil {
		return count, err
	}

	log.WithField("wallet", name).Infof("imported %d addresses", count)
	return count, nil
}

func (w *walletService) ListWalletTransactions(
	ctx context.Context, name, label string, count, skip int,
) ([]ports.WalletTransaction, error) {
	label = domain.NormalizeLabel(label)

	var txs []ports.WalletTransaction
	if err := w.runInWallet(ctx, name, func(ctx context.Context) error {
		var err error
		txs, err = w.chain.ListTransactions(ctx, name, label, count, skip)
		return err
	}); err != nil {
		return nil, err
	}
	return txs, nil
}

// runInWallet makes sure the wallet exists, then runs fn within the gate with
// the node wallet loaded.
func (w *walletService) runInWallet(
	ctx context.Context, name string, fn func(ctx context.Context) error,
) error {
	if name == "" {
		return domain.ErrNullWalletName
	}

	return w.gate.Run(ctx, func(ctx context.Context) error {
		if _, err := w.repoManager.WalletRepository().GetWallet(
			ctx, name,
		); err != nil {
			return err
		}
		return withWallet(ctx, w.chain, name, fn)
	})
}
