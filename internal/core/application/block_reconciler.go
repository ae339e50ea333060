package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/stats"
)

const (
	utxoCacheKeyPrefix    = "utxo"
	addressCacheKeyPrefix = "wallet_address"
)

// ReconcilerState is the warm-up status of the scan cache.
type ReconcilerState int

const (
	ReconcilerCold ReconcilerState = iota
	ReconcilerWarming
	ReconcilerReady
)

func (s ReconcilerState) String() string {
	switch s {
	case ReconcilerCold:
		return "cold"
	case ReconcilerWarming:
		return "warming"
	case ReconcilerReady:
		return "ready"
	default:
		return "unknown"
	}
}

// BlockChanges are the utxo changes produced by the reconciliation of a
// block.
type BlockChanges struct {
	Height  uint32
	Hash    string
	Created []domain.Utxo
	Removed []domain.UtxoKey
}

// BlockReconciler keeps the set of tracked utxos in sync with the blocks
// of the chain. Blocks must be given in order of height by one caller at a
// time.
type BlockReconciler interface {
	ProcessBlock(ctx context.Context, block *ports.Block) (*BlockChanges, error)
	// ListUtxosByHeightRange returns the reconciled utxos, including those
	// already spent but not yet removed, confirmed in [from, to].
	ListUtxosByHeightRange(ctx context.Context, from, to uint32) ([]domain.Utxo, error)
	State() ReconcilerState
}

type blockReconciler struct {
	repoManager ports.RepoManager
	cache       ports.ScanCache
	metrics     *stats.Metrics

	lock  *sync.Mutex
	state ReconcilerState
}

func NewBlockReconciler(
	repoManager ports.RepoManager, cache ports.ScanCache, metrics *stats.Metrics,
) BlockReconciler {
	return newBlockReconciler(repoManager, cache, metrics)
}

func newBlockReconciler(
	repoManager ports.RepoManager, cache ports.ScanCache, metrics *stats.Metrics,
) *blockReconciler {
	return &blockReconciler{
		repoManager: repoManager,
		cache:       cache,
		metrics:     metrics,
		lock:        &sync.Mutex{},
		state:       ReconcilerCold,
	}
}

func (r *blockReconciler) State() ReconcilerState {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state
}

// ProcessBlock diffs the given block against the tracked utxos and
// addresses, commits the resulting changes and finally marks the block as
// processed. Processing the same block twice is safe.
func (r *blockReconciler) ProcessBlock(
	ctx context.Context, block *ports.Block,
) (*BlockChanges, error) {
	if block == nil {
		return nil, ErrNullBlock
	}

	if err := r.warmUp(ctx); err != nil {
		return nil, err
	}

	changes := r.diff(block)

	if err := r.repoManager.UtxoRepository().ApplyChanges(
		ctx, changes.Created, changes.Removed,
	); err != nil {
		return nil, fmt.Errorf(
			"failed to commit changes of block %d: %w", block.Height, err,
		)
	}

	for _, u := range changes.Created {
		r.cache.Set(utxoCacheKey(u.Key()), u.Key())
	}
	for _, key := range changes.Removed {
		r.cache.Del(utxoCacheKey(key))
	}

	if err := r.repoManager.ChainStateRepository().SetProcessedBlock(
		ctx, domain.ProcessedBlock{
			Height:    block.Height,
			Hash:      block.Hash,
			UpdatedAt: time.Now().Unix(),
		},
	); err != nil {
		return nil, fmt.Errorf(
			"failed to update processed block %d: %w", block.Height, err,
		)
	}

	r.metrics.BlockProcessed(
		block.Height, len(changes.Created), len(changes.Removed),
	)

	if len(changes.Created) > 0 || len(changes.Removed) > 0 {
		log.WithFields(log.Fields{
			"height":  block.Height,
			"created": len(changes.Created),
			"removed": len(changes.Removed),
		}).Info("reconciled block")
	} else {
		log.WithField("height", block.Height).Debug("reconciled block")
	}

	return changes, nil
}

func (r *blockReconciler) ListUtxosByHeightRange(
	ctx context.Context, from, to uint32,
) ([]domain.Utxo, error) {
	return r.repoManager.UtxoRepository().GetUtxosByBlockHeight(ctx, from, to)
}

// warmUp loads all active utxos and all child addresses into the scan cache
// the first time it's called. In case of failure, next call tries again.
func (r *blockReconciler) warmUp(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.state == ReconcilerReady {
		return nil
	}
	r.state = ReconcilerWarming

	utxos, err := r.repoManager.UtxoRepository().GetAllActiveUtxos(ctx)
	if err != nil {
		r.state = ReconcilerCold
		return fmt.Errorf("failed to warm up utxo cache: %w", err)
	}
	addresses, err := r.repoManager.AddressRepository().GetAllAddresses(ctx)
	if err != nil {
		r.state = ReconcilerCold
		return fmt.Errorf("failed to warm up address cache: %w", err)
	}

	for _, u := range utxos {
		r.cache.Set(utxoCacheKey(u.Key()), u.Key())
	}
	for _, addr := range addresses {
		trackAddress(r.cache, addr)
	}

	r.state = ReconcilerReady
	log.WithFields(log.Fields{
		"utxos":     len(utxos),
		"addresses": len(addresses),
	}).Info("scan cache warmed up")
	return nil
}

func (r *blockReconciler) diff(block *ports.Block) *BlockChanges {
	created := make(map[domain.UtxoKey]domain.Utxo)
	createdOrder := make([]domain.UtxoKey, 0)

	for _, tx := range block.Transactions {
		for _, out := range tx.Outputs {
			if out.Address == "" {
				continue
			}
			value, ok := r.cache.Get(addressCacheKey(out.Address))
			if !ok {
				continue
			}
			owner, ok := value.(domain.ChildAddressKey)
			if !ok {
				continue
			}

			key := domain.UtxoKey{TxID: tx.TxID, VOut: out.N}
			if _, ok := created[key]; !ok {
				createdOrder = append(createdOrder, key)
			}
			created[key] = domain.Utxo{
				WalletName:  owner.WalletName,
				Label:       owner.Label,
				TxID:        tx.TxID,
				VOut:        out.N,
				Script:      out.Script,
				Amount:      out.Amount,
				Address:     out.Address,
				BlockHeight: block.Height,
				BlockHash:   block.Hash,
				BlockTime:   block.Time,
				Active:      true,
			}
		}
	}

	removed := make(map[domain.UtxoKey]struct{})
	removedOrder := make([]domain.UtxoKey, 0)
	spentInBlock := make(map[domain.UtxoKey]struct{})

	for _, tx := range block.Transactions {
		for _, in := range tx.Inputs {
			if in.Coinbase {
				continue
			}
			key := domain.UtxoKey{TxID: in.TxID, VOut: in.VOut}
			if _, ok := created[key]; ok {
				spentInBlock[key] = struct{}{}
			}
			if r.cache.Has(utxoCacheKey(key)) {
				if _, ok := removed[key]; !ok {
					removed[key] = struct{}{}
					removedOrder = append(removedOrder, key)
				}
			}
		}
	}

	changes := &BlockChanges{
		Height:  block.Height,
		Hash:    block.Hash,
		Created: make([]domain.Utxo, 0, len(created)),
		Removed: make([]domain.UtxoKey, 0, len(removed)),
	}

	// Outputs created and spent within the block are never tracked.
	for _, key := range createdOrder {
		if _, ok := spentInBlock[key]; ok {
			delete(created, key)
			continue
		}
		changes.Created = append(changes.Created, created[key])
	}
	// A tracked key matching a fresh output must not erase it.
	for _, key := range removedOrder {
		if _, ok := created[key]; ok {
			continue
		}
		changes.Removed = append(changes.Removed, key)
	}

	return changes
}

func trackAddress(cache ports.ScanCache, addr domain.ChildAddress) {
	cache.Set(addressCacheKey(addr.Address), addr.Key())
}

func utxoCacheKey(key domain.UtxoKey) string {
	return fmt.Sprintf("%s#%s#%d", utxoCacheKeyPrefix, key.TxID, key.VOut)
}

func addressCacheKey(address string) string {
	return fmt.Sprintf("%s#%s", addressCacheKeyPrefix, address)
}
