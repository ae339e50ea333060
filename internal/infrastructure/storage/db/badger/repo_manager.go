package dbbadger

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/wallet"
	"github.com/timshannon/badgerhold/v4"
)

const (
	cypherSaltKey  = "salt"
	cypherCheckKey = "check"
	cypherCheckMsg = "btcledger"

	maxTxRetries = 100
)

var (
	// ErrNullSecret ...
	ErrNullSecret = errors.New("secret for encrypting keys must not be null")
	// ErrInvalidSecret ...
	ErrInvalidSecret = errors.New("secret does not match the one used to encrypt keys")
)

type cypherInfo struct {
	Value []byte
}

type repoManager struct {
	store *badgerhold.Store

	walletRepository     domain.WalletRepository
	addressRepository    domain.AddressRepository
	utxoRepository       domain.UtxoRepository
	chainStateRepository domain.ChainStateRepository
}

// NewRepoManager opens (or creates if not exists) the badger store on disk.
// An empty base dir makes the store be kept in memory.
// Private keys are encrypted with a key derived from the given secret.
func NewRepoManager(
	baseDbDir, secret string, logger badger.Logger,
) (ports.RepoManager, error) {
	if len(secret) <= 0 {
		return nil, ErrNullSecret
	}

	var ledgerDir string
	if len(baseDbDir) > 0 {
		ledgerDir = filepath.Join(baseDbDir, "ledger")
	}

	store, err := createDb(ledgerDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}

	cypher, err := initCypher(store, secret)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &repoManager{
		store:                store,
		walletRepository:     newWalletRepository(store, cypher),
		addressRepository:    newAddressRepository(store, cypher),
		utxoRepository:       newUtxoRepository(store),
		chainStateRepository: newChainStateRepository(store),
	}, nil
}

func (r *repoManager) WalletRepository() domain.WalletRepository {
	return r.walletRepository
}

func (r *repoManager) AddressRepository() domain.AddressRepository {
	return r.addressRepository
}

func (r *repoManager) UtxoRepository() domain.UtxoRepository {
	return r.utxoRepository
}

func (r *repoManager) ChainStateRepository() domain.ChainStateRepository {
	return r.chainStateRepository
}

func (r *repoManager) Close() {
	r.store.Close()
}

// initCypher loads or creates the salt used to derive the encryption key and
// makes sure the secret is the same used when the store was created.
func initCypher(store *badgerhold.Store, secret string) (*wallet.Cypher, error) {
	var salt, check cypherInfo
	err := store.Get(cypherSaltKey, &salt)
	if err != nil && err != badgerhold.ErrNotFound {
		return nil, err
	}

	if err == badgerhold.ErrNotFound {
		cypher, newSalt, err := wallet.NewCypher(secret, nil)
		if err != nil {
			return nil, err
		}
		encryptedCheck, err := cypher.Encrypt(cypherCheckMsg)
		if err != nil {
			return nil, err
		}
		if err := store.Badger().Update(func(tx *badger.Txn) error {
			if err := store.TxInsert(
				tx, cypherSaltKey, cypherInfo{newSalt},
			); err != nil {
				return err
			}
			return store.TxInsert(
				tx, cypherCheckKey, cypherInfo{[]byte(encryptedCheck)},
			)
		}); err != nil {
			return nil, err
		}
		return cypher, nil
	}

	cypher, _, err := wallet.NewCypher(secret, salt.Value)
	if err != nil {
		return nil, err
	}
	if err := store.Get(cypherCheckKey, &check); err != nil {
		return nil, err
	}
	msg, err := cypher.Decrypt(string(check.Value))
	if err != nil || msg != cypherCheckMsg {
		return nil, ErrInvalidSecret
	}
	return cypher, nil
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent transactions.
func update(store *badgerhold.Store, fn func(tx *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}()
	}

	return db, nil
}
