package application_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
)

// **** ChainClient ****

type mockChainClient struct {
	mock.Mock
}

func (m *mockChainClient) GetBlockCount(ctx context.Context) (uint32, error) {
	args := m.Called(ctx)

	var res uint32
	if a := args.Get(0); a != nil {
		res = a.(uint32)
	}
	return res, args.Error(1)
}

func (m *mockChainClient) GetBlockHash(
	ctx context.Context, height uint32,
) (string, error) {
	args := m.Called(ctx, height)
	return args.String(0), args.Error(1)
}

func (m *mockChainClient) GetBlock(
	ctx context.Context, hash string,
) (*ports.Block, error) {
	args := m.Called(ctx, hash)

	var res *ports.Block
	if a := args.Get(0); a != nil {
		res = a.(*ports.Block)
	}
	return res, args.Error(1)
}

func (m *mockChainClient) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	args := m.Called(ctx, txHex)
	return args.String(0), args.Error(1)
}

func (m *mockChainClient) EstimateFeeRate(
	ctx context.Context, targetBlocks uint32,
) (uint64, error) {
	args := m.Called(ctx, targetBlocks)

	var res uint64
	if a := args.Get(0); a != nil {
		res = a.(uint64)
	}
	return res, args.Error(1)
}

func (m *mockChainClient) ListLoadedWallets(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)

	var res []string
	if a := args.Get(0); a != nil {
		res = a.([]string)
	}
	return res, args.Error(1)
}

func (m *mockChainClient) LoadWallet(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockChainClient) UnloadWallet(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockChainClient) CreateWallet(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockChainClient) ImportAddress(
	ctx context.Context, wallet, address, label string,
) error {
	args := m.Called(ctx, wallet, address, label)
	return args.Error(0)
}

func (m *mockChainClient) ListTransactions(
	ctx context.Context, wallet, label string, count, skip int,
) ([]ports.WalletTransaction, error) {
	args := m.Called(ctx, wallet, label, count, skip)

	var res []ports.WalletTransaction
	if a := args.Get(0); a != nil {
		res = a.([]ports.WalletTransaction)
	}
	return res, args.Error(1)
}

// **** RepoManager ****

// spyRepoManager counts the write operations on the utxo repository.
type spyRepoManager struct {
	ports.RepoManager
	utxoRepo *spyUtxoRepository
}

func newSpyRepoManager(repoManager ports.RepoManager) *spyRepoManager {
	return &spyRepoManager{
		RepoManager: repoManager,
		utxoRepo: &spyUtxoRepository{
			UtxoRepository: repoManager.UtxoRepository(),
			lock:           &sync.Mutex{},
		},
	}
}

func (s *spyRepoManager) UtxoRepository() domain.UtxoRepository {
	return s.utxoRepo
}

type spyUtxoRepository struct {
	domain.UtxoRepository

	lock   *sync.Mutex
	writes int
}

func (s *spyUtxoRepository) ApplyChanges(
	ctx context.Context, added []domain.Utxo, removed []domain.UtxoKey,
) error {
	s.lock.Lock()
	s.writes++
	s.lock.Unlock()
	return s.UtxoRepository.ApplyChanges(ctx, added, removed)
}

func (s *spyUtxoRepository) DeactivateUtxos(
	ctx context.Context, keys []domain.UtxoKey,
) (int, error) {
	s.lock.Lock()
	s.writes++
	s.lock.Unlock()
	return s.UtxoRepository.DeactivateUtxos(ctx, keys)
}

func (s *spyUtxoRepository) numOfWrites() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.writes
}
