package application_test

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/btcledger/internal/core/domain"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/internal/infrastructure/cache/inmemory"
	dbbadger "github.com/tdex-network/btcledger/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/btcledger/pkg/gate"
	"github.com/tdex-network/btcledger/pkg/wallet"
)

var (
	ctx     = context.Background()
	network = &chaincfg.RegressionNetParams
)

func newRepoManager(t *testing.T) ports.RepoManager {
	repoManager, err := dbbadger.NewRepoManager("", "testsecret", nil)
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)
	return repoManager
}

func newScanCache() ports.ScanCache {
	return inmemory.NewScanCache()
}

func newTestGate() *gate.Gate {
	return gate.New("test", 2*time.Second, 10*time.Second)
}

// newChainClient returns a mocked chain client on which any wallet can be
// loaded and unloaded.
func newChainClient() *mockChainClient {
	chain := &mockChainClient{}
	chain.On("ListLoadedWallets", mock.Anything).Return([]string{}, nil).Maybe()
	chain.On("LoadWallet", mock.Anything, mock.Anything).Return(nil).Maybe()
	chain.On("UnloadWallet", mock.Anything, mock.Anything).Return(nil).Maybe()
	return chain
}

func addWallet(
	t *testing.T, repoManager ports.RepoManager, name string,
) *domain.RootWallet {
	keyPair, err := wallet.GenerateRoot(network)
	require.NoError(t, err)

	w, _, err := repoManager.WalletRepository().AddWallet(ctx, domain.RootWallet{
		Name:    name,
		WIF:     keyPair.WIF,
		Address: keyPair.Address,
	})
	require.NoError(t, err)
	return w
}

func addAddress(
	t *testing.T, repoManager ports.RepoManager, root *domain.RootWallet,
	label string,
) *domain.ChildAddress {
	index, err := repoManager.WalletRepository().NextAddressIndex(ctx, root.Name)
	require.NoError(t, err)

	keyPair, err := wallet.DeriveChild(root.WIF, index, network)
	require.NoError(t, err)

	addr, _, err := repoManager.AddressRepository().AddAddress(
		ctx, domain.ChildAddress{
			WalletName: root.Name,
			Label:      label,
			Index:      index,
			WIF:        keyPair.WIF,
			Address:    keyPair.Address,
		},
	)
	require.NoError(t, err)
	return addr
}

func addUtxo(
	t *testing.T, repoManager ports.RepoManager, addr *domain.ChildAddress,
	txid string, vout uint32, amount uint64,
) domain.Utxo {
	utxo := domain.Utxo{
		WalletName:  addr.WalletName,
		Label:       addr.Label,
		TxID:        txid,
		VOut:        vout,
		Script:      scriptForAddress(t, addr.Address),
		Amount:      amount,
		Address:     addr.Address,
		BlockHeight: 1,
		Active:      true,
	}
	require.NoError(t, repoManager.UtxoRepository().ApplyChanges(
		ctx, []domain.Utxo{utxo}, nil,
	))
	return utxo
}

func scriptForAddress(t *testing.T, address string) string {
	addr, err := btcutil.DecodeAddress(address, network)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return hex.EncodeToString(script)
}

func foreignAddress(t *testing.T) string {
	keyPair, err := wallet.GenerateRoot(network)
	require.NoError(t, err)
	return keyPair.Address
}

func txidFor(seed string) string {
	return chainhash.DoubleHashH([]byte(seed)).String()
}
