package chainclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"model-api/apiconfig"
	"model-api/logging"
	"model-api/utils"

	rpcclient "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/pkg/errors"
)

const (
	topicsPath          = "/v1/topics"
	workerPayloadTxPath = "/v1/transactions/worker-payload"
	transferTxPath      = "/v1/transactions/transfer"
	registerTxPath      = "/v1/transactions/register-worker"

	submitAttempts    = 3
	submitRetryDelay  = 2 * time.Second
	defaultReqTimeout = 15 * time.Second
)

// Client talks to a chain node: cometbft RPC for consensus state, the node's
// REST gateway for module queries and signed transaction envelopes.
type Client struct {
	restUrl       string
	addressPrefix string
	denom         string
	rpc           *rpcclient.HTTP
	http          *http.Client
}

func NewClient(cfg apiconfig.ChainNodeConfig) (*Client, error) {
	rpc, err := rpcclient.New(cfg.Url, "/websocket")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chain RPC client")
	}
	return &Client{
		restUrl:       cfg.RestUrl,
		addressPrefix: cfg.AddressPrefix,
		denom:         cfg.Denom,
		rpc:           rpc,
		http:          utils.NewHttpClient(defaultReqTimeout),
	}, nil
}

func (c *Client) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	status, err := c.rpc.Status(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get chain status")
	}
	return status.SyncInfo.LatestBlockHeight, nil
}

func (c *Client) GetTopicDetails(ctx context.Context, topicId uint64) (*TopicDetails, error) {
	requestUrl, err := url.JoinPath(c.restUrl, topicsPath, fmt.Sprintf("%d", topicId))
	if err != nil {
		return nil, err
	}

	resp, err := utils.SendGetRequest(ctx, c.http, requestUrl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUnexpectedStatus, "topic query returned %d", resp.StatusCode)
	}

	var details TopicDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, err
	}
	return &details, nil
}

type addressSetResponse struct {
	Addresses []string `json:"addresses"`
}

func (c *Client) getActiveWorkers(ctx context.Context, topicId uint64, role string) ([]string, error) {
	requestUrl, err := url.JoinPath(c.restUrl, topicsPath, fmt.Sprintf("%d", topicId), "workers")
	if err != nil {
		return nil, err
	}
	requestUrl += "?role=" + role

	resp, err := utils.SendGetRequest(ctx, c.http, requestUrl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUnexpectedStatus, "worker set query returned %d", resp.StatusCode)
	}

	var set addressSetResponse
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, err
	}
	return set.Addresses, nil
}

func (c *Client) GetActiveInferers(ctx context.Context, topicId uint64) ([]string, error) {
	return c.getActiveWorkers(ctx, topicId, "inferer")
}

func (c *Client) GetActiveForecasters(ctx context.Context, topicId uint64) ([]string, error) {
	return c.getActiveWorkers(ctx, topicId, "forecaster")
}

func (c *Client) GetActiveReputers(ctx context.Context, topicId uint64) ([]string, error) {
	return c.getActiveWorkers(ctx, topicId, "reputer")
}

type openNoncesResponse struct {
	Nonces []int64 `json:"nonces"`
}

func (c *Client) DeriveLatestOpenWorkerNonce(ctx context.Context, topicId uint64) (int64, bool, error) {
	requestUrl, err := url.JoinPath(c.restUrl, topicsPath, fmt.Sprintf("%d", topicId), "nonces/open")
	if err != nil {
		return 0, false, err
	}

	resp, err := utils.SendGetRequest(ctx, c.http, requestUrl)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, errors.Wrapf(ErrUnexpectedStatus, "open nonce query returned %d", resp.StatusCode)
	}

	var open openNoncesResponse
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil {
		return 0, false, err
	}
	if len(open.Nonces) == 0 {
		return 0, false, nil
	}
	latest := open.Nonces[0]
	for _, n := range open.Nonces[1:] {
		if n > latest {
			latest = n
		}
	}
	return latest, true, nil
}

func (c *Client) GetWorkerPerformance(ctx context.Context, topicId uint64, address string) (*WorkerPerformance, error) {
	requestUrl, err := url.JoinPath(c.restUrl, topicsPath, fmt.Sprintf("%d", topicId), "workers", address, "performance")
	if err != nil {
		return nil, err
	}

	resp, err := utils.SendGetRequest(ctx, c.http, requestUrl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUnexpectedStatus, "performance query returned %d", resp.StatusCode)
	}

	var perf WorkerPerformance
	if err := json.NewDecoder(resp.Body).Decode(&perf); err != nil {
		return nil, err
	}
	return &perf, nil
}

// signedEnvelope is the wire format the gateway expects for writes: the raw
// message plus a signature over its canonical JSON bytes.
type signedEnvelope struct {
	Sender    string          `json:"sender"`
	PubKey    string          `json:"pub_key"`
	Signature string          `json:"signature"`
	Message   json.RawMessage `json:"message"`
}

type workerPayloadMsg struct {
	TopicId  uint64         `json:"topic_id"`
	Nonce    int64          `json:"nonce"`
	GasPrice uint64         `json:"gas_price,omitempty"`
	Payload  *WorkerPayload `json:"payload"`
}

type transferMsg struct {
	ToAddress string `json:"to_address"`
	Amount    int64  `json:"amount"`
	Denom     string `json:"denom"`
}

type registerWorkerMsg struct {
	TopicId uint64 `json:"topic_id"`
	Owner   string `json:"owner"`
}

type txResponse struct {
	TxHash            string `json:"tx_hash"`
	Code              int    `json:"code"`
	RawLog            string `json:"raw_log"`
	AlreadyRegistered bool   `json:"already_registered"`
}

func (c *Client) postSignedTx(ctx context.Context, mnemonic, txPath string, msg any) (*txResponse, error) {
	account, err := AccountFromMnemonic(mnemonic, c.addressPrefix)
	if err != nil {
		return nil, err
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	signature, err := account.Sign(msgBytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction message")
	}

	envelope := signedEnvelope{
		Sender:    account.Address,
		PubKey:    account.PubKeyBase64(),
		Signature: base64.StdEncoding.EncodeToString(signature),
		Message:   msgBytes,
	}

	requestUrl, err := url.JoinPath(c.restUrl, txPath)
	if err != nil {
		return nil, err
	}

	resp, err := utils.SendPostJsonRequest(ctx, c.http, requestUrl, envelope)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUnexpectedStatus, "tx endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var txResp txResponse
	if err := json.Unmarshal(body, &txResp); err != nil {
		return nil, err
	}
	if txResp.Code != 0 {
		logging.Error("Transaction failed on-chain", logging.Chain, "code", txResp.Code, "rawLog", txResp.RawLog)
		return &txResp, errors.Wrapf(ErrTxRejected, "code %d: %s", txResp.Code, txResp.RawLog)
	}
	return &txResp, nil
}

func (c *Client) SubmitWorkerPayload(ctx context.Context, mnemonic string, topicId uint64, payload *WorkerPayload, gasPrice uint64, nonce int64) (*TxResult, error) {
	msg := workerPayloadMsg{
		TopicId:  topicId,
		Nonce:    nonce,
		GasPrice: gasPrice,
		Payload:  payload,
	}

	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		resp, err := c.postSignedTx(ctx, mnemonic, workerPayloadTxPath, msg)
		if err == nil {
			logging.Debug("Worker payload accepted", logging.Chain, "topicId", topicId, "nonce", nonce, "txHash", resp.TxHash)
			return &TxResult{TxHash: resp.TxHash}, nil
		}
		lastErr = err
		// A rejection is final for this nonce; only transport errors are retried.
		if errors.Is(err, ErrTxRejected) {
			break
		}
		logging.Warn("Worker payload broadcast failed, retrying", logging.Chain,
			"topicId", topicId, "nonce", nonce, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(submitRetryDelay):
		}
	}
	return nil, lastErr
}

func (c *Client) TransferFunds(ctx context.Context, fromMnemonic string, toAddress string, amount int64) (*TxResult, error) {
	msg := transferMsg{
		ToAddress: toAddress,
		Amount:    amount,
		Denom:     c.denom,
	}
	resp, err := c.postSignedTx(ctx, fromMnemonic, transferTxPath, msg)
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: resp.TxHash}, nil
}

func (c *Client) RegisterWorker(ctx context.Context, mnemonic string, topicId uint64) (*TxResult, error) {
	account, err := AccountFromMnemonic(mnemonic, c.addressPrefix)
	if err != nil {
		return nil, err
	}
	msg := registerWorkerMsg{
		TopicId: topicId,
		Owner:   account.Address,
	}
	resp, err := c.postSignedTx(ctx, mnemonic, registerTxPath, msg)
	if err != nil {
		return nil, err
	}
	if resp.AlreadyRegistered {
		return &TxResult{TxHash: resp.TxHash}, ErrWorkerAlreadyRegistered
	}
	return &TxResult{TxHash: resp.TxHash}, nil
}

var _ ChainBridge = (*Client)(nil)
