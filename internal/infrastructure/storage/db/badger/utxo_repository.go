package dbbadger

import (
	"context"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type utxoRecord struct {
	WalletName  string `badgerhold:"index"`
	Label       string
	TxID        string
	VOut        uint32
	Script      string
	Amount      uint64
	Address     string
	BlockHeight uint32 `badgerhold:"index"`
	BlockHash   string
	BlockTime   int64
	Active      bool
}

type utxoRepository struct {
	store *badgerhold.Store
}

func newUtxoRepository(store *badgerhold.Store) domain.UtxoRepository {
	return &utxoRepository{store}
}

func (r *utxoRepository) ApplyChanges(
	_ context.Context, added []domain.Utxo, removed []domain.UtxoKey,
) error {
	if len(added) <= 0 && len(removed) <= 0 {
		return nil
	}

	return update(r.store, func(tx *badger.Txn) error {
		for _, u := range added {
			rec := toUtxoRecord(u)
			// A redelivered block must not reactivate a withdrawn utxo.
			var stored utxoRecord
			err := r.store.TxGet(tx, u.Key().String(), &stored)
			if err != nil && err != badgerhold.ErrNotFound {
				return err
			}
			if err == nil && !stored.Active {
				rec.Active = false
			}
			if err := r.store.TxUpsert(tx, u.Key().String(), rec); err != nil {
				return err
			}
		}
		for _, k := range removed {
			if err := r.store.TxDelete(
				tx, k.String(), utxoRecord{},
			); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (r *utxoRepository) DeactivateUtxos(
	_ context.Context, keys []domain.UtxoKey,
) (int, error) {
	count := 0
	err := update(r.store, func(tx *badger.Txn) error {
		count = 0
		for _, k := range keys {
			var rec utxoRecord
			if err := r.store.TxGet(tx, k.String(), &rec); err != nil {
				if err == badgerhold.ErrNotFound {
					continue
				}
				return err
			}
			if !rec.Active {
				continue
			}
			rec.Active = false
			if err := r.store.TxUpdate(tx, k.String(), rec); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *utxoRepository) GetUtxo(
	_ context.Context, key domain.UtxoKey,
) (*domain.Utxo, error) {
	var rec utxoRecord
	if err := r.store.Get(key.String(), &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrUtxoNotFound
		}
		return nil, err
	}
	u := rec.toDomain()
	return &u, nil
}

func (r *utxoRepository) GetAllActiveUtxos(
	_ context.Context,
) ([]domain.Utxo, error) {
	query := badgerhold.Where("Active").Eq(true)
	return r.findUtxos(query)
}

func (r *utxoRepository) GetActiveUtxosForWallet(
	_ context.Context, walletName string,
) ([]domain.Utxo, error) {
	query := badgerhold.Where("WalletName").Eq(walletName).Index("WalletName").
		And("Active").Eq(true)
	return r.findUtxos(query)
}

func (r *utxoRepository) GetActiveUtxosForAddress(
	_ context.Context, walletName, label string,
) ([]domain.Utxo, error) {
	query := badgerhold.Where("WalletName").Eq(walletName).Index("WalletName").
		And("Label").Eq(label).
		And("Active").Eq(true)
	return r.findUtxos(query)
}

func (r *utxoRepository) GetUtxosByBlockHeight(
	_ context.Context, from, to uint32,
) ([]domain.Utxo, error) {
	if from > to {
		return nil, domain.ErrInvalidHeightRange
	}
	query := badgerhold.Where("BlockHeight").Ge(from).Index("BlockHeight").
		And("BlockHeight").Le(to).
		SortBy("BlockHeight")
	return r.findUtxos(query)
}

func (r *utxoRepository) findUtxos(
	query *badgerhold.Query,
) ([]domain.Utxo, error) {
	var recs []utxoRecord
	if err := r.store.Find(&recs, query); err != nil {
		return nil, err
	}

	utxos := make([]domain.Utxo, 0, len(recs))
	for _, rec := range recs {
		utxos = append(utxos, rec.toDomain())
	}
	return utxos, nil
}

func toUtxoRecord(u domain.Utxo) utxoRecord {
	return utxoRecord{
		WalletName:  u.WalletName,
		Label:       u.Label,
		TxID:        u.TxID,
		VOut:        u.VOut,
		Script:      u.Script,
		Amount:      u.Amount,
		Address:     u.Address,
		BlockHeight: u.BlockHeight,
		BlockHash:   u.BlockHash,
		BlockTime:   u.BlockTime,
		Active:      u.Active,
	}
}

func (r utxoRecord) toDomain() domain.Utxo {
	return domain.Utxo{
		WalletName:  r.WalletName,
		Label:       r.Label,
		TxID:        r.TxID,
		VOut:        r.VOut,
		Script:      r.Script,
		Amount:      r.Amount,
		Address:     r.Address,
		BlockHeight: r.BlockHeight,
		BlockHash:   r.BlockHash,
		BlockTime:   r.BlockTime,
		Active:      r.Active,
	}
}
