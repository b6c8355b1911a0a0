package chainclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"model-api/apiconfig"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	gateway := httptest.NewServer(handler)
	t.Cleanup(gateway.Close)

	c, err := NewClient(apiconfig.ChainNodeConfig{
		Url:           "http://localhost:26657",
		RestUrl:       gateway.URL,
		AddressPrefix: "cosmos",
		Denom:         "stake",
	})
	require.NoError(t, err)
	return c
}

func TestGetTopicDetails(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/topics/7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(&TopicDetails{
			Id:                     7,
			IsActive:               true,
			EpochLastEnded:         100,
			WorkerSubmissionWindow: 10,
		})
	}))

	topic, err := c.GetTopicDetails(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, topic)
	assert.Equal(t, uint64(7), topic.Id)
	assert.True(t, topic.IsActive)
}

func TestGetTopicDetailsAbsent(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	topic, err := c.GetTopicDetails(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, topic)
}

func TestGetTopicDetailsServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.GetTopicDetails(context.Background(), 7)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestGetActiveWorkersByRole(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/topics/7/workers", r.URL.Path)
		switch r.URL.Query().Get("role") {
		case "inferer":
			_ = json.NewEncoder(w).Encode(addressSetResponse{Addresses: []string{"cosmos1a", "cosmos1b"}})
		case "forecaster":
			_ = json.NewEncoder(w).Encode(addressSetResponse{Addresses: []string{"cosmos1c"}})
		default:
			http.NotFound(w, r)
		}
	}))

	inferers, err := c.GetActiveInferers(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"cosmos1a", "cosmos1b"}, inferers)

	forecasters, err := c.GetActiveForecasters(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"cosmos1c"}, forecasters)
}

func TestDeriveLatestOpenWorkerNonce(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/topics/7/nonces/open", r.URL.Path)
		_ = json.NewEncoder(w).Encode(openNoncesResponse{Nonces: []int64{101, 105, 103}})
	}))

	nonce, found, err := c.DeriveLatestOpenWorkerNonce(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(105), nonce)
}

func TestDeriveLatestOpenWorkerNonceEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openNoncesResponse{})
	}))

	_, found, err := c.DeriveLatestOpenWorkerNonce(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, found)
}

func decodeEnvelope(t *testing.T, r *http.Request) (signedEnvelope, map[string]any) {
	t.Helper()
	var envelope signedEnvelope
	require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
	var msg map[string]any
	require.NoError(t, json.Unmarshal(envelope.Message, &msg))
	return envelope, msg
}

func TestSubmitWorkerPayloadSignsEnvelope(t *testing.T) {
	account, err := AccountFromMnemonic(testMnemonic, "cosmos")
	require.NoError(t, err)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/worker-payload", r.URL.Path)
		envelope, msg := decodeEnvelope(t, r)

		assert.Equal(t, account.Address, envelope.Sender)
		assert.Equal(t, float64(7), msg["topic_id"])
		assert.Equal(t, float64(105), msg["nonce"])

		// The signature must verify over the raw message bytes.
		sig, err := base64.StdEncoding.DecodeString(envelope.Signature)
		require.NoError(t, err)
		assert.True(t, account.priv.PubKey().VerifySignature(envelope.Message, sig))

		_ = json.NewEncoder(w).Encode(txResponse{TxHash: "ABC123"})
	}))

	payload := &WorkerPayload{InferenceValue: "123.45"}
	result, err := c.SubmitWorkerPayload(context.Background(), testMnemonic, 7, payload, 10, 105)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", result.TxHash)
}

func TestSubmitWorkerPayloadRejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(txResponse{Code: 5, RawLog: "nonce already fulfilled"})
	}))

	_, err := c.SubmitWorkerPayload(context.Background(), testMnemonic, 7, &WorkerPayload{InferenceValue: "1"}, 10, 105)
	require.ErrorIs(t, err, ErrTxRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitWorkerPayloadRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "gateway busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(txResponse{TxHash: "DEF456"})
	}))

	result, err := c.SubmitWorkerPayload(context.Background(), testMnemonic, 7, &WorkerPayload{InferenceValue: "1"}, 10, 105)
	require.NoError(t, err)
	assert.Equal(t, "DEF456", result.TxHash)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransferFunds(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/transfer", r.URL.Path)
		_, msg := decodeEnvelope(t, r)
		assert.Equal(t, "cosmos1dest", msg["to_address"])
		assert.Equal(t, float64(5100), msg["amount"])
		assert.Equal(t, "stake", msg["denom"])
		_ = json.NewEncoder(w).Encode(txResponse{TxHash: "XFER1"})
	}))

	result, err := c.TransferFunds(context.Background(), testMnemonic, "cosmos1dest", 5100)
	require.NoError(t, err)
	assert.Equal(t, "XFER1", result.TxHash)
}

func TestRegisterWorkerAlreadyRegistered(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/register-worker", r.URL.Path)
		_ = json.NewEncoder(w).Encode(txResponse{TxHash: "REG1", AlreadyRegistered: true})
	}))

	result, err := c.RegisterWorker(context.Background(), testMnemonic, 7)
	require.True(t, errors.Is(err, ErrWorkerAlreadyRegistered))
	require.NotNil(t, result)
	assert.Equal(t, "REG1", result.TxHash)
}
