package wallet

import (
	"context"

	"model-api/chainclient"
	"model-api/logging"
	"model-api/secrets"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const secretRefPrefix = "wallet-mnemonic/"

// Wallet is a freshly provisioned signing identity. Only the address and the
// secret reference ever reach the database; the mnemonic lives in the secret
// store alone.
type Wallet struct {
	Id        string
	Address   string
	SecretRef string
}

// Provisioner creates and destroys wallets against the secret store. It has
// no database access: persistence of the wallet row is the saga's concern.
type Provisioner struct {
	store         secrets.Store
	addressPrefix string
}

func NewProvisioner(store secrets.Store, addressPrefix string) *Provisioner {
	return &Provisioner{store: store, addressPrefix: addressPrefix}
}

// Create generates a key pair, stores the mnemonic under a fresh secret ref,
// and returns the wallet. No database row exists at this point.
func (p *Provisioner) Create(ctx context.Context) (*Wallet, error) {
	mnemonic, err := chainclient.NewMnemonic()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate mnemonic")
	}
	account, err := chainclient.AccountFromMnemonic(mnemonic, p.addressPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive account")
	}

	secretRef := secretRefPrefix + uuid.New().String()
	if err := p.store.Set(ctx, secretRef, mnemonic); err != nil {
		return nil, errors.Wrap(err, "failed to store wallet mnemonic")
	}

	w := &Wallet{
		Id:        uuid.New().String(),
		Address:   account.Address,
		SecretRef: secretRef,
	}
	logging.Info("Provisioned wallet", logging.Wallet, "id", w.Id, "address", w.Address)
	return w, nil
}

// Destroy deletes the wallet's secret. A missing secret is not an error, so
// Destroy can run repeatedly during rollback.
func (p *Provisioner) Destroy(ctx context.Context, w *Wallet) error {
	if err := p.store.Delete(ctx, w.SecretRef); err != nil {
		return errors.Wrapf(err, "failed to delete wallet secret %s", w.SecretRef)
	}
	logging.Info("Destroyed wallet secret", logging.Wallet, "id", w.Id, "address", w.Address)
	return nil
}
