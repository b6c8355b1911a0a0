package submission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"model-api/chainclient"
	"model-api/secrets"
	"model-api/store"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	chain    *chainclient.MockBridge
	secrets  *secrets.InMemoryStore
	store    *store.Store
	pipeline *Pipeline
	webhook  *httptest.Server
	modelId  string
}

func newPipelineFixture(t *testing.T, handler http.HandlerFunc) *pipelineFixture {
	t.Helper()

	chain := chainclient.NewMockBridge()
	chain.Topics[7] = &chainclient.TopicDetails{
		Id:                     7,
		IsActive:               true,
		EpochLastEnded:         100,
		EpochLength:            100,
		WorkerSubmissionWindow: 10,
	}
	chain.Height = 105
	chain.OpenNonce = 105
	chain.OpenNonceSet = true
	chain.Inferers = []string{"cosmos1peer"}

	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"inference_value": "123.45"})
		}
	}
	webhook := httptest.NewServer(handler)
	t.Cleanup(webhook.Close)

	secretStore := secrets.NewInMemoryStore()
	require.NoError(t, secretStore.Set(context.Background(), "wallet-mnemonic/w1",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"))

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	model := store.Model{
		Id:         "model-1",
		UserId:     "user-1",
		TopicId:    7,
		WalletId:   "wallet-1",
		WebhookUrl: webhook.URL,
		IsInferer:  true,
		Active:     true,
	}
	record := store.WalletRecord{Id: "wallet-1", Address: "cosmos1model", SecretRef: "wallet-mnemonic/w1"}
	require.NoError(t, st.SaveModelWithWallet(context.Background(), model, record))

	pipeline := NewPipeline(st, secretStore, chain, NewSolicitor(time.Second), 10)
	return &pipelineFixture{
		chain:    chain,
		secrets:  secretStore,
		store:    st,
		pipeline: pipeline,
		webhook:  webhook,
		modelId:  "model-1",
	}
}

func TestPipelineSubmits(t *testing.T) {
	f := newPipelineFixture(t, nil)

	outcome, err := f.pipeline.Run(context.Background(), f.modelId)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, outcome.Status)
	assert.Equal(t, int64(105), outcome.Nonce)
	assert.Equal(t, "mock-tx-hash", outcome.TxHash)

	assert.Equal(t, 1, f.chain.SubmitCalled)
	assert.Equal(t, uint64(7), f.chain.LastSubmit.TopicId)
	assert.Equal(t, int64(105), f.chain.LastSubmit.Nonce)
	assert.Equal(t, uint64(10), f.chain.LastSubmit.GasPrice)
	assert.Equal(t, "123.45", f.chain.LastSubmit.Payload.InferenceValue)
}

func TestPipelineSkipsClosedWindow(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.chain.Height = 200

	// Re-running with unchanged chain state must produce the same outcome.
	for i := 0; i < 2; i++ {
		outcome, err := f.pipeline.Run(context.Background(), f.modelId)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, outcome.Status)
		assert.Equal(t, "outside submission window", outcome.Reason)
	}
	assert.Equal(t, 0, f.chain.SubmitCalled)
}

func TestPipelineSkipsDeactivatedModel(t *testing.T) {
	f := newPipelineFixture(t, nil)
	ok, err := f.store.SetModelActive(context.Background(), f.modelId, false)
	require.NoError(t, err)
	require.True(t, ok)

	outcome, err := f.pipeline.Run(context.Background(), f.modelId)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, 0, f.chain.GetTopicCalled)
}

func TestPipelineUnknownModelIsFatal(t *testing.T) {
	f := newPipelineFixture(t, nil)

	_, err := f.pipeline.Run(context.Background(), "nope")
	require.Error(t, err)
	assert.False(t, IsRecoverable(err))
}

func TestPipelineGateTransportErrorIsRecoverable(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.chain.HeightErr = errors.New("rpc unavailable")

	_, err := f.pipeline.Run(context.Background(), f.modelId)
	require.Error(t, err)
	assert.True(t, IsRecoverable(err))
}

func TestPipelineWebhookErrorIsRecoverable(t *testing.T) {
	f := newPipelineFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	_, err := f.pipeline.Run(context.Background(), f.modelId)
	require.Error(t, err)
	assert.True(t, IsRecoverable(err))
}

func TestPipelineInvalidPayloadIsFatal(t *testing.T) {
	f := newPipelineFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"proof": "p"})
	})

	_, err := f.pipeline.Run(context.Background(), f.modelId)
	require.ErrorIs(t, err, ErrIncompletePayload)
	assert.False(t, IsRecoverable(err))
}

func TestPipelineMissingMnemonicIsFatal(t *testing.T) {
	f := newPipelineFixture(t, nil)
	require.NoError(t, f.secrets.Delete(context.Background(), "wallet-mnemonic/w1"))

	_, err := f.pipeline.Run(context.Background(), f.modelId)
	require.Error(t, err)
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, 0, f.chain.SubmitCalled)
}

func TestPipelineRejectedTxIsFatal(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.chain.SubmitErr = chainclient.ErrTxRejected

	_, err := f.pipeline.Run(context.Background(), f.modelId)
	require.ErrorIs(t, err, chainclient.ErrTxRejected)
	assert.False(t, IsRecoverable(err))
}

func TestPipelineTransportSubmitErrorIsRecoverable(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.chain.SubmitErr = errors.New("connection reset")

	_, err := f.pipeline.Run(context.Background(), f.modelId)
	require.Error(t, err)
	assert.True(t, IsRecoverable(err))
}

func TestPipelineUsesModelGasPrice(t *testing.T) {
	f := newPipelineFixture(t, nil)
	// Re-save a model with a custom gas cap.
	price := "42"
	model := store.Model{
		Id:          "model-2",
		UserId:      "user-1",
		TopicId:     7,
		WalletId:    "wallet-2",
		WebhookUrl:  f.webhook.URL,
		IsInferer:   true,
		MaxGasPrice: &price,
		Active:      true,
	}
	record := store.WalletRecord{Id: "wallet-2", Address: "cosmos1other", SecretRef: "wallet-mnemonic/w2"}
	require.NoError(t, f.store.SaveModelWithWallet(context.Background(), model, record))
	require.NoError(t, f.secrets.Set(context.Background(), "wallet-mnemonic/w2",
		"legal winner thank year wave sausage worth useful legal winner thank yellow"))

	_, err := f.pipeline.Run(context.Background(), "model-2")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), f.chain.LastSubmit.GasPrice)
}
