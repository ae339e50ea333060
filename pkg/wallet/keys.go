package wallet

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// KeyPair holds a private key in WIF format along with its P2WPKH address.
type KeyPair struct {
	WIF     string
	Address string
}

// GenerateRoot creates a fresh random secp256k1 key and returns it in
// compressed WIF format together with its native segwit address.
func GenerateRoot(network *chaincfg.Params) (*KeyPair, error) {
	if network == nil {
		return nil, ErrNullNetwork
	}

	prvkey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return newKeyPair(prvkey, network)
}

// DeriveChild deterministically derives the key at path m/0'/0/{index} from
// the given root key. The raw 32-byte root private key is used as BIP32 seed.
func DeriveChild(
	rootWIF string, index uint32, network *chaincfg.Params,
) (*KeyPair, error) {
	if network == nil {
		return nil, ErrNullNetwork
	}
	if index >= hdkeychain.HardenedKeyStart {
		return nil, ErrOutOfRangeIndex
	}

	wif, err := btcutil.DecodeWIF(rootWIF)
	if err != nil {
		return nil, ErrInvalidWIF
	}

	masterKey, err := hdkeychain.NewMaster(wif.PrivKey.Serialize(), network)
	if err != nil {
		return nil, err
	}

	key := masterKey
	for _, step := range ChildDerivationPath(index) {
		key, err = key.Derive(step)
		if err != nil {
			return nil, err
		}
	}

	prvkey, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return newKeyPair(prvkey, network)
}

// AddressFromWIF returns the P2WPKH address of the given private key.
func AddressFromWIF(wifStr string, network *chaincfg.Params) (string, error) {
	if network == nil {
		return "", ErrNullNetwork
	}
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return "", ErrInvalidWIF
	}
	return p2wpkhAddress(wif.PrivKey.PubKey(), network)
}

func newKeyPair(
	prvkey *btcec.PrivateKey, network *chaincfg.Params,
) (*KeyPair, error) {
	wif, err := btcutil.NewWIF(prvkey, network, true)
	if err != nil {
		return nil, err
	}
	addr, err := p2wpkhAddress(prvkey.PubKey(), network)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		WIF:     wif.String(),
		Address: addr,
	}, nil
}

func p2wpkhAddress(
	pubkey *btcec.PublicKey, network *chaincfg.Params,
) (string, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubkey.SerializeCompressed()), network,
	)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
