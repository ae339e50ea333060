package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/scrypt"
)

const (
	// SaltSize is the length in bytes of the salt used to derive the
	// encryption key.
	SaltSize = 32

	// scrypt cost params, the key is derived once per Cypher.
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// Cypher encrypts and decrypts secrets with AES-256-GCM using a key derived
// from a passphrase.
type Cypher struct {
	gcm cipher.AEAD
}

// NewCypher derives the encryption key from the given passphrase and salt.
// A nil salt makes a new random one be generated, it is returned and must be
// persisted to be able to decrypt later.
func NewCypher(passphrase string, salt []byte) (*Cypher, []byte, error) {
	if len(passphrase) <= 0 {
		return nil, nil, ErrNullPassphrase
	}

	key, salt, err := DeriveKey([]byte(passphrase), salt)
	if err != nil {
		return nil, nil, err
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, nil, err
	}
	return &Cypher{gcm}, salt, nil
}

// Encrypt returns the base64 encoded cyphertext of the given plaintext.
func (c *Cypher) Encrypt(plaintext string) (string, error) {
	if len(plaintext) <= 0 {
		return "", ErrNullPlainText
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	cyphertext := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(cyphertext), nil
}

// Decrypt reveals the plaintext of the given base64 encoded cyphertext.
func (c *Cypher) Decrypt(cyphertext string) (string, error) {
	if len(cyphertext) <= 0 {
		return "", ErrNullCypherText
	}
	data, err := base64.StdEncoding.DecodeString(cyphertext)
	if err != nil {
		return "", ErrInvalidCypherText
	}
	if len(data) < c.gcm.NonceSize() {
		return "", ErrInvalidCypherText
	}

	nonce, text := data[:c.gcm.NonceSize()], data[c.gcm.NonceSize():]
	plaintext, err := c.gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DeriveKey derives a 32 byte array key from a custom passhprase
func DeriveKey(passphrase, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}
