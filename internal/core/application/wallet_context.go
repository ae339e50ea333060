package application

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/core/ports"
)

const unloadTimeout = 10 * time.Second

// withWallet runs fn with the node wallet of the given name loaded. The
// wallet is loaded only if not already, and is always unloaded at the end
// on a best-effort basis: an unload failure is logged and never returned.
func withWallet(
	ctx context.Context, chain ports.ChainClient, name string,
	fn func(ctx context.Context) error,
) error {
	loaded, err := chain.ListLoadedWallets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list loaded wallets: %w", err)
	}

	if !contains(loaded, name) {
		if err := chain.LoadWallet(ctx, name); err != nil {
			return fmt.Errorf("failed to load wallet %s: %w", name, err)
		}
	}

	defer func() {
		// The operation context might be already cancelled at this point.
		unloadCtx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
		defer cancel()

		if err := chain.UnloadWallet(unloadCtx, name); err != nil {
			log.WithError(err).WithField("wallet", name).Warn(
				"failed to unload wallet",
			)
		}
	}()

	return fn(ctx)
}

func contains(list []string, str string) bool {
	for _, s := range list {
		if s == str {
			return true
		}
	}
	return false
}
