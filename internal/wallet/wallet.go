// Package wallet holds EVM account keys and produces personal_sign signatures.
package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bardlex/stobixd/pkg/errors"
)

// Wallet is a secp256k1 key and its derived address
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromPrivateKey parses a hex private key, with or without 0x prefix
func FromPrivateKey(privateKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWallet, "parse_private_key",
			"invalid private key")
	}
	return fromECDSA(key), nil
}

// FromMnemonic derives the key at m/44'/60'/0'/0/index
func FromMnemonic(mnemonic string, index uint32) (*Wallet, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), "")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWallet, "parse_mnemonic", "invalid mnemonic")
	}

	// Only the BIP-32 key serialization depends on the network params
	node, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWallet, "derive_key", "failed to create master key")
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}
	for _, child := range path {
		if node, err = node.Derive(child); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeWallet, "derive_key",
				"failed to derive child key").WithContext("index", index)
		}
	}

	priv, err := node.ECPrivKey()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWallet, "derive_key", "failed to extract private key")
	}
	return fromBTCEC(priv)
}

// Generate creates a fresh random wallet
func Generate() (*Wallet, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWallet, "generate", "failed to generate key")
	}
	return fromBTCEC(priv)
}

func fromBTCEC(priv *btcec.PrivateKey) (*Wallet, error) {
	key, err := crypto.ToECDSA(priv.Serialize())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWallet, "convert_key", "invalid secp256k1 key")
	}
	return fromECDSA(key), nil
}

func fromECDSA(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the EIP-55 checksummed address
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// PrivateKeyHex returns the key as 64 hex characters without prefix
func (w *Wallet) PrivateKeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(w.key))
}

// Matches reports whether address is this wallet's, ignoring case
func (w *Wallet) Matches(address string) bool {
	return strings.EqualFold(strings.TrimSpace(address), w.address.Hex())
}

// SignMessage returns the 65-byte personal_sign signature of message as 0x hex
func (w *Wallet) SignMessage(message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeWallet, "sign_message", "failed to sign message")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced a personal_sign signature
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "recover_address", "invalid signature encoding")
	}
	if len(sig) != crypto.SignatureLength {
		return "", errors.New(errors.ErrorTypeValidation, "recover_address", "signature must be 65 bytes").
			WithContext("length", len(sig))
	}

	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "recover_address", "failed to recover public key")
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
