package chainclient

import (
	"encoding/base64"
	"fmt"

	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	bip39 "github.com/cosmos/go-bip39"
)

const mnemonicEntropyBits = 256

// NewMnemonic generates a fresh BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// Account is a locally derived signing identity. The mnemonic itself is not
// retained, only the derived key.
type Account struct {
	Address string
	priv    *secp256k1.PrivKey
}

// AccountFromMnemonic derives the secp256k1 key at the standard cosmos HD
// path and Bech32-encodes its address with the given prefix.
func AccountFromMnemonic(mnemonic, addressPrefix string) (*Account, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	derived, err := hd.Secp256k1.Derive()(mnemonic, "", sdk.FullFundraiserPath)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	priv := &secp256k1.PrivKey{Key: derived}
	address, err := sdk.Bech32ifyAddressBytes(addressPrefix, priv.PubKey().Address())
	if err != nil {
		return nil, fmt.Errorf("failed to Bech32-encode address: %w", err)
	}
	return &Account{Address: address, priv: priv}, nil
}

func (a *Account) Sign(msg []byte) ([]byte, error) {
	return a.priv.Sign(msg)
}

func (a *Account) PubKeyBase64() string {
	return base64.StdEncoding.EncodeToString(a.priv.PubKey().Bytes())
}
