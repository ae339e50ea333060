package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcledger/internal/core/application"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/gate"
	"github.com/tdex-network/btcledger/pkg/wallet"
)

func TestWalletService(t *testing.T) {
	t.Run("CreateWallet", testCreateWallet())
	t.Run("CreateWalletAddress", testCreateWalletAddress())
	t.Run("CreateWalletAddressConcurrently", testCreateWalletAddressConcurrently())
	t.Run("CreateWalletAddressSeparatorInNames", testCreateWalletAddressSeparatorInNames())
	t.Run("GetWalletBalance", testGetWalletBalance())
	t.Run("WalletContext", testWalletContext())
	t.Run("ImportWalletAddresses", testImportWalletAddresses())
	t.Run("ListWalletTransactions", testListWalletTransactions())
	t.Run("GateTimeout", testWalletGateTimeout())
}

func testCreateWallet() func(t *testing.T) {
	return func(t *testing.T) {
		repoManager := newRepoManager(t)
		chain := newChainClient()
		chain.On("CreateWallet", mock.Anything, "w1").Return(nil).Once()
		svc := application.NewWalletService(
			repoManager, chain, newScanCache(), newTestGate(), network,
		)

		w, err := svc.CreateWallet(ctx, "w1")
		require.NoError(t, err)
		require.Equal(t, "w1", w.Name)
		require.NotEmpty(t, w.WIF)

		addr, err := wallet.AddressFromWIF(w.WIF, network)
		require.NoError(t, err)
		require.Equal(t, addr, w.Address)

		again, err := svc.CreateWallet(ctx, "w1")
		require.NoError(t, err)
		require.Equal(t, *w, *again)

		wallets, err := repoManager.WalletRepository().ListWallets(ctx)
		require.NoError(t, err)
		require.Len(t, wallets, 1)

		_, err = svc.CreateWallet(ctx, "")
		require.Equal(t, domain.ErrNullWalletName, err)

		chain.AssertNumberOfCalls(t, "CreateWallet", 1)
	}
}

func testCreateWalletAddress() func(t *testing.T) {
	return func(t *testing.T) {
		repoManager := newRepoManager(t)
		root := addWallet(t, repoManager, "w1")
		cache := newScanCache()
		chain := newChainClient()
		expected, err := wallet.DeriveChild(root.WIF, 0, network)
		require.NoError(t, err)
		chain.On(
			"ImportAddress", mock.Anything, "w1", expected.Address, "shop-a",
		).Return(nil).Once()
		svc := application.NewWalletService(
			repoManager, chain, cache, newTestGate(), network,
		)

		addr, err := svc.CreateWalletAddress(ctx, "w1", "Shop-A")
		require.NoError(t, err)
		require.Equal(t, "shop-a", addr.Label)
		require.Equal(t, uint32(0), addr.Index)
		require.Equal(t, expected.Address, addr.Address)
		require.Equal(t, expected.WIF, addr.WIF)
		require.True(t, cache.Has(fmt.Sprintf("wallet_address#%s", addr.Address)))

		again, err := svc.CreateWalletAddress(ctx, "w1", " shop-a ")
		require.NoError(t, err)
		require.Equal(t, *addr, *again)

		found, err := svc.GetWalletAddress(ctx, "w1", "SHOP-A")
		require.NoError(t, err)
		require.Equal(t, addr.Address, found.Address)

		list, err := svc.ListWalletAddresses(ctx, "w1")
		require.NoError(t, err)
		require.Len(t, list, 1)

		chain.AssertNumberOfCalls(t, "ImportAddress", 1)

		_, err = svc.CreateWalletAddress(ctx, "w2", "shop-a")
		require.Equal(t, domain.ErrWalletNotFound, err)

		_, err = svc.CreateWalletAddress(ctx, "w1", "  ")
		require.Equal(t, domain.ErrNullLabel, err)

		_, err = svc.GetWalletAddress(ctx, "w1", "shop-b")
		require.Equal(t, domain.ErrAddressNotFound, err)

		_, err = svc.ListWalletAddresses(ctx, "w2")
		require.Equal(t, domain.ErrWalletNotFound, err)
	}
}

func testCreateWalletAddressSeparatorInNames() func(t *testing.T) {
	return func(t *testing.T) {
		repoManager := newRepoManager(t)
		rootA := addWallet(t, repoManager, "a")
		rootAB := addWallet(t, repoManager, "a/b")
		chain := newChainClient()
		chain.On(
			"ImportAddress", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		).Return(nil)
		svc := application.NewWalletService(
			repoManager, chain, newScanCache(), newTestGate(), network,
		)

		first, err := svc.CreateWalletAddress(ctx, "a", "b/c")
		require.NoError(t, err)
		second, err := svc.CreateWalletAddress(ctx, "a/b", "c")
		require.NoError(t, err)

		expectedA, err := wallet.DeriveChild(rootA.WIF, 0, network)
		require.NoError(t, err)
		expectedAB, err := wallet.DeriveChild(rootAB.WIF, 0, network)
		require.NoError(t, err)

		require.Equal(t, "a", first.WalletName)
		require.Equal(t, expectedA.WIF, first.WIF)
		require.Equal(t, "a/b", second.WalletName)
		require.Equal(t, expectedAB.WIF, second.WIF)
		require.NotEqual(t, first.Address, second.Address)

		chain.AssertNumberOfCalls(t, "ImportAddress", 2)
	}
}

func testCreateWalletAddressConcurrently() func(t *testing.T) {
	return func(t *testing.T) {
		const numOfLabels = 10

		repoManager := newRepoManager(t)
		addWallet(t, repoManager, "w1")
		chain := newChainClient()
		chain.On(
			"ImportAddress", mock.Anything, "w1", mock.Anything, mock.Anything,
		).Return(nil)
		svc := application.NewWalletService(
			repoManager, chain, newScanCache(), newTestGate(), network,
		)

		wg := &sync.WaitGroup{}
		addresses := make([]*domain.ChildAddress, numOfLabels)
		errs := make([]error, numOfLabels)
		for i := 0; i < numOfLabels; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				addresses[i], errs[i] = svc.CreateWalletAddress(
					ctx, "w1", fmt.Sprintf("label-%d", i),
				)
			}(i)
		}
		wg.Wait()

		seenAddresses := make(map[string]struct{})
		seenIndexes := make(map[uint32]struct{})
		for i := 0; i < numOfLabels; i++ {
			require.NoError(t, errs[i])
			seenAddresses[addresses[i].Address] = struct{}{}
			seenIndexes[addresses[i].Index] = struct{}{}
		}
		require.Len(t, seenAddresses, numOfLabels)
		require.Len(t, seenIndexes, numOfLabels)
		for i := uint32(0); i < numOfLabels; i++ {
			require.Contains(t, seenIndexes, i)
		}

		next, err := repoManager.WalletRepository().NextAddressIndex(ctx, "w1")
		require.NoError(t, err)
		require.Equal(t, uint32(numOfLabels), next)
	}
}

func testGetWalletBalance() func(t *testing.T) {
	return func(t *testing.T) {
		repoManager := newRepoManager(t)
		root := addWallet(t, repoManager, "w1")
		addrA := addAddress(t, repoManager, root, "a")
		addrB := addAddress(t, repoManager, root, "b")
		addUtxo(t, repoManager, addrA, txidFor("1"), 0, 10000)
		addUtxo(t, repoManager, addrA, txidFor("2"), 1, 20000)
		addUtxo(t, repoManager, addrB, txidFor("3"), 0, 5000)
		_, err := repoManager.UtxoRepository().DeactivateUtxos(
			ctx, []domain.UtxoKey{{TxID: txidFor("2"), VOut: 1}},
		)
		require.NoError(t, err)

		svc := application.NewWalletService(
			repoManager, newChainClient(), newScanCache(), newTestGate(), network,
		)

		balance, err := svc.GetWalletBalance(ctx, "w1")
		require.NoError(t, err)
		require.Equal(t, uint64(15000), balance)

		balance, err = svc.GetWalletAddressBalance(ctx, "w1", "A")
		require.NoError(t, err)
		require.Equal(t, uint64(10000), balance)

		balance, err = svc.GetWalletAddressBalance(ctx, "w1", "b")
		require.NoError(t, err)
		require.Equal(t, uint64(5000), balance)

		_, err = svc.GetWalletAddressBalance(ctx, "w1", "c")
		require.Equal(t, domain.ErrAddressNotFound, err)

		_, err = svc.GetWalletBalance(ctx, "w2")
		require.Equal(t, domain.ErrWalletNotFound, err)
	}
}

func testWalletContext() func(t *testing.T) {
	return func(t *testing.T) {
		t.Run("load_if_not_loaded", func(t *testing.T) {
			repoManager := newRepoManager(t)
			addWallet(t, repoManager, "w1")
			chain := &mockChainClient{}
			chain.On("ListLoadedWallets", mock.Anything).Return([]string{"w2"}, nil)
			chain.On("LoadWallet", mock.Anything, "w1").Return(nil).Once()
			chain.On("UnloadWallet", mock.Anything, "w1").Return(nil).Once()
			svc := application.NewWalletService(
				repoManager, chain, newScanCache(), newTestGate(), network,
			)

			_, err := svc.GetWalletBalance(ctx, "w1")
			require.NoError(t, err)
			chain.AssertExpectations(t)
		})

		t.Run("skip_load_if_loaded", func(t *testing.T) {
			repoManager := newRepoManager(t)
			addWallet(t, repoManager, "w1")
			chain := &mockChainClient{}
			chain.On("ListLoadedWallets", mock.Anything).Return([]string{"w1"}, nil)
			chain.On("UnloadWallet", mock.Anything, "w1").Return(nil).Once()
			svc := application.NewWalletService(
				repoManager, chain, newScanCache(), newTestGate(), network,
			)

			_, err := svc.GetWalletBalance(ctx, "w1")
			require.NoError(t, err)
			chain.AssertNotCalled(t, "LoadWallet", mock.Anything, mock.Anything)
			chain.AssertExpectations(t)
		})

		t.Run("unload_failure_is_swallowed", func(t *testing.T) {
			repoManager := newRepoManager(t)
			root := addWallet(t, repoManager, "w1")
			addUtxo(
				t, repoManager, addAddress(t, repoManager, root, "a"),
				txidFor("1"), 0, 1000,
			)
			chain := &mockChainClient{}
			chain.On("ListLoadedWallets", mock.Anything).Return([]string{}, nil)
			chain.On("LoadWallet", mock.Anything, "w1").Return(nil)
			chain.On("UnloadWallet", mock.Anything, "w1").Return(
				&ports.RPCError{Code: -4, Message: "unload failed"},
			)
			svc := application.NewWalletService(
				repoManager, chain, newScanCache(), newTestGate(), network,
			)

			balance, err := svc.GetWalletBalance(ctx, "w1")
			require.NoError(t, err)
			require.Equal(t, uint64(1000), balance)
		})

		t.Run("load_failure_is_returned", func(t *testing.T) {
			repoManager := newRepoManager(t)
			addWallet(t, repoManager, "w1")
			chain := &mockChainClient{}
			loadErr := &ports.RPCError{Code: -18, Message: "wallet file not found"}
			chain.On("ListLoadedWallets", mock.Anything).Return([]string{}, nil)
			chain.On("LoadWallet", mock.Anything, "w1").Return(loadErr)
			svc := application.NewWalletService(
				repoManager, chain, newScanCache(), newTestGate(), network,
			)

			_, err := svc.GetWalletBalance(ctx, "w1")
			var rpcErr *ports.RPCError
			require.True(t, errors.As(err, &rpcErr))
			require.Equal(t, -18, rpcErr.Code)
			chain.AssertNotCalled(t, "UnloadWallet", mock.Anything, mock.Anything)
		})
	}
}

func testImportWalletAddresses() func(t *testing.T) {
	return func(t *testing.T) {
		repoManager := newRepoManager(t)
		root := addWallet(t, repoManager, "w1")
		addrA := addAddress(t, repoManager, root, "a")
		addrB := addAddress(t, repoManager, root, "b")
		chain := newChainClient()
		chain.On("ImportAddress", mock.Anything, "w1", addrA.Address, "a").
			Return(nil).Once()
		chain.On("ImportAddress", mock.Anything, "w1", addrB.Address, "b").
			Return(nil).Once()
		svc := application.NewWalletService(
			repoManager, chain, newScanCache(), newTestGate(), network,
		)

		count, err := svc.ImportWalletAddresses(ctx, "w1")
		require.NoError(t, err)
		require.Equal(t, 2, count)
		chain.AssertExpectations(t)
	}
}

func testListWalletTransactions() func(t *testing.T) {
	return func(t *testing.T) {
		repoManager := newRepoManager(t)
		addWallet(t, repoManager, "w1")
		txs := []ports.WalletTransaction{
			{TxID: txidFor("1"), Label: "a", Category: "receive", Amount: 1000},
		}
		chain := newChainClient()
		chain.On("ListTransactions", mock.Anything, "w1", "a", 10, 0).
			Return(txs, nil)
		chain.On("ListTransactions", mock.Anything, "w1", "b", 10, 0).
			Return([]ports.WalletTransaction{}, nil)
		svc := application.NewWalletService(
			repoManager, chain, newScanCache(), newTestGate(), network,
		)

		res, err := svc.ListWalletTransactions(ctx, "w1", "A", 10, 0)
		require.NoError(t, err)
		require.Equal(t, txs, res)

		res, err = svc.ListWalletTransactions(ctx, "w1", "b", 10, 0)
		require.NoError(t, err)
		require.Empty(t, res)
	}
}

func testWalletGateTimeout() func(t *testing.T) {
	return func(t *testing.T) {
		repoManager := newRepoManager(t)
		addWallet(t, repoManager, "w1")
		g := gate.New("test", 50*time.Millisecond, time.Second)
		svc := application.NewWalletService(
			repoManager, newChainClient(), newScanCache(), g, network,
		)

		locked := make(chan struct{})
		release := make(chan struct{})
		go func() {
			g.Run(ctx, func(ctx context.Context) error {
				close(locked)
				<-release
				return nil
			})
		}()
		<-locked

		_, err := svc.GetWalletBalance(ctx, "w1")
		require.ErrorIs(t, err, gate.ErrWaitTimeout)

		close(release)
		require.Eventually(t, func() bool {
			_, err := svc.GetWalletBalance(ctx, "w1")
			return err == nil
		}, time.Second, 20*time.Millisecond)
	}
}
