package registration

import (
	"context"
	"path/filepath"
	"testing"

	"model-api/chainclient"
	"model-api/secrets"
	"model-api/store"
	"model-api/wallet"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const treasuryRef = "treasury/main"

type sagaFixture struct {
	chain   *chainclient.MockBridge
	secrets *secrets.InMemoryStore
	store   *store.Store
	service *Service
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()

	chain := chainclient.NewMockBridge()
	chain.Topics[7] = &chainclient.TopicDetails{Id: 7, IsActive: true, EpochLength: 100, WorkerSubmissionWindow: 10}

	secretStore := secrets.NewInMemoryStore()
	require.NoError(t, secretStore.Set(context.Background(), treasuryRef,
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"))

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	service := NewService(
		chain,
		wallet.NewProvisioner(secretStore, "cosmos"),
		secretStore,
		st,
		Treasury{SecretRef: treasuryRef, RegistrationFee: 100, InitialFunding: 5000},
	)
	return &sagaFixture{chain: chain, secrets: secretStore, store: st, service: service}
}

func validRequest() Request {
	return Request{
		UserId:     "user-1",
		TopicId:    7,
		WebhookUrl: "http://localhost:9000/webhook",
		IsInferer:  true,
	}
}

func TestRegisterModelHappyPath(t *testing.T) {
	f := newSagaFixture(t)

	result, err := f.service.RegisterModel(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.ModelId)
	assert.NotEmpty(t, result.WalletAddress)
	assert.Equal(t, int64(5100), result.CostsIncurred)

	// Treasury funded the new wallet with fee plus initial balance.
	assert.Equal(t, 1, f.chain.TransferCalled)
	assert.Equal(t, result.WalletAddress, f.chain.LastTransfer.ToAddress)
	assert.Equal(t, int64(5100), f.chain.LastTransfer.Amount)

	// Worker was registered on the topic.
	assert.Equal(t, 1, f.chain.RegisterCalled)
	assert.Equal(t, uint64(7), f.chain.LastRegister.TopicId)

	// Model and wallet rows persisted, model active.
	m, ok, err := f.store.GetModel(context.Background(), result.ModelId)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.Active)
	w, ok, err := f.store.GetWallet(context.Background(), m.WalletId)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.WalletAddress, w.Address)

	// Mnemonic is retrievable under the persisted secret ref.
	_, ok, err = f.secrets.Get(context.Background(), w.SecretRef)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterModelInvalidRequest(t *testing.T) {
	f := newSagaFixture(t)

	req := validRequest()
	req.WebhookUrl = ""
	_, err := f.service.RegisterModel(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	req = validRequest()
	req.IsInferer = false
	req.IsForecaster = false
	_, err = f.service.RegisterModel(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, f.chain.GetTopicCalled)
}

func TestRegisterModelTopicMissing(t *testing.T) {
	f := newSagaFixture(t)

	req := validRequest()
	req.TopicId = 999
	_, err := f.service.RegisterModel(context.Background(), req)
	require.ErrorIs(t, err, ErrTopicUnavailable)

	// No wallet was ever created.
	assert.Equal(t, 1, f.secrets.SetCalled) // treasury seed only
	assert.Equal(t, 0, f.chain.TransferCalled)
}

func TestRegisterModelTopicInactive(t *testing.T) {
	f := newSagaFixture(t)
	f.chain.Topics[8] = &chainclient.TopicDetails{Id: 8, IsActive: false}

	req := validRequest()
	req.TopicId = 8
	_, err := f.service.RegisterModel(context.Background(), req)
	require.ErrorIs(t, err, ErrTopicUnavailable)
	assert.Equal(t, 0, f.chain.TransferCalled)
}

func TestRegisterModelTreasuryMissingRollsBackWallet(t *testing.T) {
	f := newSagaFixture(t)
	require.NoError(t, f.secrets.Delete(context.Background(), treasuryRef))

	_, err := f.service.RegisterModel(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrTreasuryUnavailable)

	// The wallet secret was created and then rolled back.
	assert.Equal(t, 0, f.secrets.Len())
	assert.Equal(t, 0, f.chain.TransferCalled)
}

func TestRegisterModelFundingFailureRollsBackWallet(t *testing.T) {
	f := newSagaFixture(t)
	f.chain.TransferErr = errors.New("insufficient treasury balance")

	_, err := f.service.RegisterModel(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrFunding)

	// Only the treasury secret remains; the wallet mnemonic is gone.
	assert.Equal(t, 1, f.secrets.Len())
	assert.Equal(t, 0, f.chain.RegisterCalled)

	models, err := f.store.ListModels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestRegisterModelAlreadyRegisteredIsSuccess(t *testing.T) {
	f := newSagaFixture(t)
	f.chain.RegisterErr = chainclient.ErrWorkerAlreadyRegistered

	result, err := f.service.RegisterModel(context.Background(), validRequest())
	require.NoError(t, err)

	_, ok, err := f.store.GetModel(context.Background(), result.ModelId)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterModelRegistrationFailureKeepsWalletSecret(t *testing.T) {
	f := newSagaFixture(t)
	f.chain.RegisterErr = errors.New("node unreachable")

	_, err := f.service.RegisterModel(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrWorkerRegistration)

	// Past the funding step nothing is rolled back: the mnemonic stays for
	// manual reconciliation, but no model row exists.
	assert.Equal(t, 1, f.chain.TransferCalled)
	assert.Equal(t, 2, f.secrets.Len())
	models, err := f.store.ListModels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, models)
}
