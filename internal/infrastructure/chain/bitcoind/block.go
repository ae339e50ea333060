package bitcoind

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/btcledger/internal/core/ports"
	"github.com/tdex-network/btcledger/pkg/mathutil"
)

type blockResult struct {
	Hash              string     `json:"hash"`
	Height            uint32     `json:"height"`
	Time              int64      `json:"time"`
	PreviousBlockHash string     `json:"previousblockhash"`
	NextBlockHash     string     `json:"nextblockhash"`
	Tx                []txResult `json:"tx"`
}

type txResult struct {
	TxID string       `json:"txid"`
	Vin  []vinResult  `json:"vin"`
	Vout []voutResult `json:"vout"`
}

type vinResult struct {
	Coinbase string `json:"coinbase"`
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
}

type voutResult struct {
	Value        decimal.Decimal    `json:"value"`
	N            uint32             `json:"n"`
	ScriptPubKey scriptPubKeyResult `json:"scriptPubKey"`
}

type scriptPubKeyResult struct {
	Hex     string `json:"hex"`
	Address string `json:"address"`
	// Addresses is set by nodes older than v22.
	Addresses []string `json:"addresses"`
}

type estimateSmartFeeResult struct {
	FeeRate *decimal.Decimal `json:"feerate"`
	Errors  []string         `json:"errors"`
	Blocks  int64            `json:"blocks"`
}

func (s *service) GetBlockCount(ctx context.Context) (uint32, error) {
	var count uint32
	if err := s.cachedCall(
		ctx, "blockcount", &count, nil, "getblockcount",
	); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *service) GetBlockHash(ctx context.Context, height uint32) (string, error) {
	var hash string
	if err := s.cachedCall(
		ctx, fmt.Sprintf("blockhash#%d", height), &hash, nil,
		"getblockhash", height,
	); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlock is cached only once the block has a successor, the tip block can
// still get a next hash.
func (s *service) GetBlock(ctx context.Context, hash string) (*ports.Block, error) {
	var res blockResult
	if err := s.cachedCall(
		ctx, fmt.Sprintf("block#%s", hash), &res,
		func() bool { return res.NextBlockHash != "" },
		"getblock", hash, 2,
	); err != nil {
		return nil, err
	}
	return res.toBlock()
}

func (s *service) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	var txid string
	if err := call(ctx, s.client, "sendrawtransaction", &txid, txHex); err != nil {
		return "", err
	}
	return txid, nil
}

func (s *service) EstimateFeeRate(
	ctx context.Context, targetBlocks uint32,
) (uint64, error) {
	var res estimateSmartFeeResult
	if err := s.cachedCall(
		ctx, fmt.Sprintf("estimatesmartfee#%d", targetBlocks), &res,
		func() bool { return res.FeeRate != nil },
		"estimatesmartfee", targetBlocks,
	); err != nil {
		return 0, err
	}
	if res.FeeRate == nil {
		return 0, fmt.Errorf("%w: %v", ErrFeeEstimationUnavailable, res.Errors)
	}
	return mathutil.FeeRateFromBTCPerKvB(*res.FeeRate), nil
}

func (b blockResult) toBlock() (*ports.Block, error) {
	txs := make([]ports.Transaction, 0, len(b.Tx))
	for _, tx := range b.Tx {
		ins := make([]ports.TxInput, 0, len(tx.Vin))
		for _, in := range tx.Vin {
			ins = append(ins, ports.TxInput{
				TxID:     in.TxID,
				VOut:     in.Vout,
				Coinbase: in.Coinbase != "",
			})
		}

		outs := make([]ports.TxOutput, 0, len(tx.Vout))
		for _, out := range tx.Vout {
			amount, err := mathutil.ToSatoshis(out.Value)
			if err != nil {
				return nil, fmt.Errorf(
					"invalid amount of output %s:%d: %w", tx.TxID, out.N, err,
				)
			}
			address := out.ScriptPubKey.Address
			if address == "" && len(out.ScriptPubKey.Addresses) == 1 {
				address = out.ScriptPubKey.Addresses[0]
			}
			outs = append(outs, ports.TxOutput{
				N:       out.N,
				Amount:  amount,
				Script:  out.ScriptPubKey.Hex,
				Address: address,
			})
		}

		txs = append(txs, ports.Transaction{
			TxID:    tx.TxID,
			Inputs:  ins,
			Outputs: outs,
		})
	}

	return &ports.Block{
		Hash:         b.Hash,
		Height:       b.Height,
		Time:         b.Time,
		PreviousHash: b.PreviousBlockHash,
		NextHash:     b.NextBlockHash,
		Transactions: txs,
	}, nil
}
