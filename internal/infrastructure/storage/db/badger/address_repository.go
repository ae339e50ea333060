package dbbadger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/pkg/wallet"
	"github.com/timshannon/badgerhold/v4"
)

type addressRecord struct {
	WalletName   string `badgerhold:"index"`
	Label        string
	Index        uint32
	EncryptedWIF string
	Address      string
	CreatedAt    int64
}

type addressRepository struct {
	store  *badgerhold.Store
	cypher *wallet.Cypher
}

func newAddressRepository(
	store *badgerhold.Store, cypher *wallet.Cypher,
) domain.AddressRepository {
	return &addressRepository{store, cypher}
}

func (r *addressRepository) AddAddress(
	_ context.Context, addr domain.ChildAddress,
) (*domain.ChildAddress, bool, error) {
	if len(addr.WalletName) <= 0 {
		return nil, false, domain.ErrNullWalletName
	}
	if len(addr.Label) <= 0 {
		return nil, false, domain.ErrNullLabel
	}

	encryptedWIF, err := r.cypher.Encrypt(addr.WIF)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt address key: %w", err)
	}
	rec := addressRecord{
		WalletName:   addr.WalletName,
		Label:        addr.Label,
		Index:        addr.Index,
		EncryptedWIF: encryptedWIF,
		Address:      addr.Address,
		CreatedAt:    addr.CreatedAt,
	}
	key := addressKey(addr.WalletName, addr.Label)

	var stored addressRecord
	added := false
	if err := update(r.store, func(tx *badger.Txn) error {
		added = false
		err := r.store.TxGet(tx, key, &stored)
		if err == nil {
			return nil
		}
		if err != badgerhold.ErrNotFound {
			return err
		}
		if err := r.store.TxInsert(tx, key, rec); err != nil {
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

func (r *addressRepository) GetAddress(
	_ context.Context, walletName, label string,
) (*domain.ChildAddress, error) {
	var rec addressRecord
	if err := r.store.Get(addressKey(walletName, label), &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrAddressNotFound
		}
		return nil, err
	}
	return r.toDomain(rec)
}

func (r *addressRepository) GetAddresses(
	_ context.Context, keys []domain.ChildAddressKey,
) ([]domain.ChildAddress, error) {
	recs := make([]addressRecord, 0, len(keys))
	if err := r.store.Badger().View(func(tx *badger.Txn) error {
		for _, k := range keys {
			var rec addressRecord
			if err := r.store.TxGet(
				tx, addressKey(k.WalletName, k.Label), &rec,
			); err != nil {
				if err == badgerhold.ErrNotFound {
					continue
				}
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return r.toDomainList(recs)
}

func (r *addressRepository) GetAddressesForWallet(
	_ context.Context, walletName string,
) ([]domain.ChildAddress, error) {
	query := badgerhold.Where("WalletName").Eq(walletName).Index("WalletName")
	return r.findAddresses(query)
}

func (r *addressRepository) GetAllAddresses(
	_ context.Context,
) ([]domain.ChildAddress, error) {
	return r.findAddresses(nil)
}

func (r *addressRepository) findAddresses(
	query *badgerhold.Query,
) ([]domain.ChildAddress, error) {
	var recs []addressRecord
	if err := r.store.Find(&recs, query); err != nil {
		return nil, err
	}
	return r.toDomainList(recs)
}

func (r *addressRepository) toDomainList(
	recs []addressRecord,
) ([]domain.ChildAddress, error) {
	addresses := make([]domain.ChildAddress, 0, len(recs))
	for _, rec := range recs {
		addr, err := r.toDomain(rec)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, *addr)
	}
	return addresses, nil
}

func (r *addressRepository) toDomain(
	rec addressRecord,
) (*domain.ChildAddress, error) {
	wif, err := r.cypher.Decrypt(rec.EncryptedWIF)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to decrypt key of address %s: %w", rec.Address, err,
		)
	}
	return &domain.ChildAddress{
		WalletName: rec.WalletName,
		Label:      rec.Label,
		Index:      rec.Index,
		WIF:        wif,
		Address:    rec.Address,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// addressKey prefixes the wallet name with its length so that names and
// labels containing the separator can't map to the same key.
func addressKey(walletName, label string) string {
	return fmt.Sprintf("%d:%s/%s", len(walletName), walletName, label)
}
