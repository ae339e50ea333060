package domain

import "fmt"

// UtxoKey represent the ID of an Utxo, composed by its txid and vout.
type UtxoKey struct {
	TxID string
	VOut uint32
}

func (k UtxoKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.VOut)
}

// Utxo is an output paying to one of the tracked child addresses.
type Utxo struct {
	WalletName  string
	Label       string
	TxID        string
	VOut        uint32
	Script      string
	Amount      uint64
	Address     string
	BlockHeight uint32
	BlockHash   string
	BlockTime   int64
	Active      bool
}

// Key returns the identifier of the utxo.
func (u Utxo) Key() UtxoKey {
	return UtxoKey{u.TxID, u.VOut}
}

// Balance returns the sum of the amounts of the given active utxos.
func Balance(utxos []Utxo) uint64 {
	balance := uint64(0)
	for _, u := range utxos {
		if u.Active {
			balance += u.Amount
		}
	}
	return balance
}
