package wallet

import (
	"context"
	"strings"
	"testing"

	"model-api/chainclient"
	"model-api/secrets"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStoresMnemonicBeforeReturning(t *testing.T) {
	store := secrets.NewInMemoryStore()
	p := NewProvisioner(store, "cosmos")

	w, err := p.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, w.Id)
	assert.True(t, strings.HasPrefix(w.Address, "cosmos"))
	assert.True(t, strings.HasPrefix(w.SecretRef, "wallet-mnemonic/"))

	mnemonic, ok, err := store.Get(context.Background(), w.SecretRef)
	require.NoError(t, err)
	require.True(t, ok)

	// The stored mnemonic must derive the address we handed out.
	account, err := chainclient.AccountFromMnemonic(mnemonic, "cosmos")
	require.NoError(t, err)
	assert.Equal(t, w.Address, account.Address)
}

func TestCreateDistinctWallets(t *testing.T) {
	store := secrets.NewInMemoryStore()
	p := NewProvisioner(store, "cosmos")

	w1, err := p.Create(context.Background())
	require.NoError(t, err)
	w2, err := p.Create(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, w1.Address, w2.Address)
	assert.NotEqual(t, w1.SecretRef, w2.SecretRef)
	assert.Equal(t, 2, store.Len())
}

func TestCreateStoreFailure(t *testing.T) {
	store := secrets.NewInMemoryStore()
	store.SetErr = errors.New("store unavailable")
	p := NewProvisioner(store, "cosmos")

	w, err := p.Create(context.Background())
	require.Error(t, err)
	assert.Nil(t, w)
	assert.Equal(t, 0, store.Len())
}

func TestDestroyIsIdempotent(t *testing.T) {
	store := secrets.NewInMemoryStore()
	p := NewProvisioner(store, "cosmos")

	w, err := p.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Destroy(context.Background(), w))
	assert.Equal(t, 0, store.Len())

	// Second destroy finds nothing and still succeeds.
	require.NoError(t, p.Destroy(context.Background(), w))
}
