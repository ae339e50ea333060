package bitcoind

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/mathutil"
)

type descriptorInfoResult struct {
	Descriptor string `json:"descriptor"`
	Checksum   string `json:"checksum"`
}

type importDescriptorRequest struct {
	Desc      string `json:"desc"`
	Timestamp string `json:"timestamp"`
	Label     string `json:"label,omitempty"`
}

type importDescriptorResult struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type listTransactionsResult struct {
	TxID          string          `json:"txid"`
	Address       string          `json:"address"`
	Label         string          `json:"label"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Confirmations int64           `json:"confirmations"`
	BlockHash     string          `json:"blockhash"`
	BlockHeight   uint32          `json:"blockheight"`
	Time          int64           `json:"time"`
}

func (s *service) ListLoadedWallets(ctx context.Context) ([]string, error) {
	var wallets []string
	if err := call(ctx, s.client, "listwallets", &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (s *service) LoadWallet(ctx context.Context, name string) error {
	err := call(ctx, s.client, "loadwallet", nil, name)
	if err != nil && isWalletAlreadyLoaded(err) {
		logBenign("loadwallet", err)
		return nil
	}
	return err
}

func (s *service) UnloadWallet(ctx context.Context, name string) error {
	err := call(ctx, s.client, "unloadwallet", nil, name)
	if err != nil && isWalletNotLoaded(err) {
		logBenign("unloadwallet", err)
		return nil
	}
	return err
}

// CreateWallet creates a blank descriptor wallet without private keys, the
// node is only used to watch addresses.
func (s *service) CreateWallet(ctx context.Context, name string) error {
	err := call(
		ctx, s.client, "createwallet", nil,
		name, true, true, "", false, true, false,
	)
	if err != nil && isWalletAlreadyExisting(err) {
		logBenign("createwallet", err)
		return nil
	}
	return err
}

// ImportAddress adds the address as a watch-only descriptor to the wallet,
// without rescanning the chain.
func (s *service) ImportAddress(
	ctx context.Context, wallet, address, label string,
) error {
	var info descriptorInfoResult
	if err := call(
		ctx, s.client, "getdescriptorinfo", &info,
		fmt.Sprintf("addr(%s)", address),
	); err != nil {
		return err
	}

	client, err := s.walletClient(wallet)
	if err != nil {
		return err
	}

	req := importDescriptorRequest{
		Desc:      fmt.Sprintf("addr(%s)#%s", address, info.Checksum),
		Timestamp: "now",
		Label:     label,
	}
	var res []importDescriptorResult
	if err := call(
		ctx, client, "importdescriptors", &res,
		[]importDescriptorRequest{req},
	); err != nil {
		return err
	}
	for _, r := range res {
		if !r.Success {
			if r.Error != nil {
				return &ports.RPCError{Code: r.Error.Code, Message: r.Error.Message}
			}
			return fmt.Errorf("failed to import address %s", address)
		}
	}
	return nil
}

// ListTransactions returns the node wallet history for the given label, or
// for all labels if empty. An unknown label yields an empty list.
func (s *service) ListTransactions(
	ctx context.Context, wallet, label string, count, skip int,
) ([]ports.WalletTransaction, error) {
	client, err := s.walletClient(wallet)
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = "*"
	}

	var res []listTransactionsResult
	if err := call(
		ctx, client, "listtransactions", &res, label, count, skip, true,
	); err != nil {
		if isLabelNotFound(err) {
			logBenign("listtransactions", err)
			return []ports.WalletTransaction{}, nil
		}
		return nil, err
	}

	txs := make([]ports.WalletTransaction, 0, len(res))
	for _, r := range res {
		amount, err := signedSatoshis(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount of tx %s: %w", r.TxID, err)
		}
		fee, err := signedSatoshis(r.Fee)
		if err != nil {
			return nil, fmt.Errorf("invalid fee of tx %s: %w", r.TxID, err)
		}
		txs = append(txs, ports.WalletTransaction{
			TxID:          r.TxID,
			Address:       r.Address,
			Label:         r.Label,
			Category:      r.Category,
			Amount:        amount,
			Fee:           fee,
			Confirmations: r.Confirmations,
			BlockHash:     r.BlockHash,
			BlockHeight:   r.BlockHeight,
			Time:          r.Time,
		})
	}
	return txs, nil
}

func signedSatoshis(btc decimal.Decimal) (int64, error) {
	sats, err := mathutil.ToSatoshis(btc.Abs())
	if err != nil {
		return 0, err
	}
	if btc.IsNegative() {
		return -int64(sats), nil
	}
	return int64(sats), nil
}
