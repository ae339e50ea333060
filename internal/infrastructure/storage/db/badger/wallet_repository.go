package dbbadger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/pkg/wallet"
	"github.com/timshannon/badgerhold/v4"
)

type walletRecord struct {
	Name         string
	EncryptedWIF string
	Address      string
	CreatedAt    int64
}

type addressCounter struct {
	WalletName string
	Next       uint32
}

type walletRepository struct {
	store  *badgerhold.Store
	cypher *wallet.Cypher
}

func newWalletRepository(
	store *badgerhold.Store, cypher *wallet.Cypher,
) domain.WalletRepository {
	return &walletRepository{store, cypher}
}

func (r *walletRepository) AddWallet(
	_ context.Context, w domain.RootWallet,
) (*domain.RootWallet, bool, error) {
	if len(w.Name) <= 0 {
		return nil, false, domain.ErrNullWalletName
	}

	encryptedWIF, err := r.cypher.Encrypt(w.WIF)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt wallet key: %w", err)
	}
	rec := walletRecord{
		Name:         w.Name,
		EncryptedWIF: encryptedWIF,
		Address:      w.Address,
		CreatedAt:    w.CreatedAt,
	}

	var stored walletRecord
	added := false
	if err := update(r.store, func(tx *badger.Txn) error {
		added = false
		err := r.store.TxGet(tx, w.Name, &stored)
		if err == nil {
			return nil
		}
		if err != badgerhold.ErrNotFound {
			return err
		}
		if err := r.store.TxInsert(tx, w.Name, rec); err != nil {
			return err
		}
		stored = rec
		added = true
		return nil
	}); err != nil {
		return nil, false, err
	}

	res, err := r.toDomain(stored)
	if err != nil {
		return nil, false, err
	}
	return res, added, nil
}

func (r *walletRepository) GetWallet(
	_ context.Context, name string,
) (*domain.RootWallet, error) {
	var rec walletRecord
	if err := r.store.Get(name, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return r.toDomain(rec)
}

func (r *walletRepository) ListWallets(
	_ context.Context,
) ([]domain.RootWallet, error) {
	var recs []walletRecord
	if err := r.store.Find(&recs, nil); err != nil {
		return nil, err
	}

	wallets := make([]domain.RootWallet, 0, len(recs))
	for _, rec := range recs {
		w, err := r.toDomain(rec)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, nil
}

func (r *walletRepository) NextAddressIndex(
	_ context.Context, name string,
) (uint32, error) {
	var index uint32
	err := update(r.store, func(tx *badger.Txn) error {
		var w walletRecord
		if err := r.store.TxGet(tx, name, &w); err != nil {
			if err == badgerhold.ErrNotFound {
				return domain.ErrWalletNotFound
			}
			return err
		}

		counter := addressCounter{WalletName: name}
		if err := r.store.TxGet(tx, name, &counter); err != nil &&
			err != badgerhold.ErrNotFound {
			return err
		}
		index = counter.Next
		counter.Next++
		return r.store.TxUpsert(tx, name, counter)
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

func (r *walletRepository) toDomain(rec walletRecord) (*domain.RootWallet, error) {
	wif, err := r.cypher.Decrypt(rec.EncryptedWIF)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key of wallet %s: %w", rec.Name, err)
	}
	return &domain.RootWallet{
		Name:      rec.Name,
		WIF:       wif,
		Address:   rec.Address,
		CreatedAt: rec.CreatedAt,
	}, nil
}
