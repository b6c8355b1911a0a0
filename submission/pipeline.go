package submission

import (
	"context"
	"strconv"

	"model-api/chainclient"
	"model-api/logging"
	"model-api/secrets"
	"model-api/store"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSubmitted Status = "submitted"
)

// Outcome describes how one job tick ended. Skips carry the gate's reason.
type Outcome struct {
	Status Status
	Reason string
	Nonce  int64
	TxHash string
}

// Pipeline runs one submission attempt for a model: gate, solicit, sign,
// submit. Errors it returns are classified; callers redeliver only the
// recoverable ones.
type Pipeline struct {
	store           *store.Store
	secrets         secrets.Store
	chain           chainclient.ChainBridge
	gate            *Gate
	solicitor       *Solicitor
	defaultGasPrice uint64
}

func NewPipeline(
	st *store.Store,
	secretStore secrets.Store,
	chain chainclient.ChainBridge,
	solicitor *Solicitor,
	defaultGasPrice uint64,
) *Pipeline {
	return &Pipeline{
		store:           st,
		secrets:         secretStore,
		chain:           chain,
		gate:            NewGate(chain),
		solicitor:       solicitor,
		defaultGasPrice: defaultGasPrice,
	}
}

func (p *Pipeline) Run(ctx context.Context, modelId string) (*Outcome, error) {
	model, ok, err := p.store.GetModel(ctx, modelId)
	if err != nil {
		return nil, Recoverable(errors.Wrap(err, "failed to load model"))
	}
	if !ok {
		return nil, errors.Errorf("model %s does not exist", modelId)
	}
	if !model.Active {
		return &Outcome{Status: StatusSkipped, Reason: "model is deactivated"}, nil
	}

	decision, err := p.gate.Evaluate(ctx, model.TopicId)
	if err != nil {
		return nil, Recoverable(err)
	}
	if !decision.Proceed {
		logging.Debug("Skipping submission", logging.Submission,
			"modelId", modelId, "topicId", model.TopicId, "reason", decision.Reason)
		return &Outcome{Status: StatusSkipped, Reason: decision.Reason}, nil
	}

	req := WebhookRequest{TopicId: model.TopicId, Nonce: decision.Nonce}
	if req.InfererAddresses, err = p.chain.GetActiveInferers(ctx, model.TopicId); err != nil {
		return nil, Recoverable(errors.Wrap(err, "failed to list active inferers"))
	}
	if model.IsForecaster {
		if req.ForecasterAddresses, err = p.chain.GetActiveForecasters(ctx, model.TopicId); err != nil {
			return nil, Recoverable(errors.Wrap(err, "failed to list active forecasters"))
		}
	}

	payload, err := p.solicitor.Solicit(ctx, model.WebhookUrl, req)
	if err != nil {
		if errors.Is(err, ErrWebhookUnreachable) || errors.Is(err, ErrWebhookStatus) {
			return nil, Recoverable(err)
		}
		// A malformed payload will stay malformed on redelivery.
		return nil, err
	}

	mnemonic, err := p.loadMnemonic(ctx, model)
	if err != nil {
		return nil, err
	}

	result, err := p.chain.SubmitWorkerPayload(ctx, mnemonic, model.TopicId, payload, p.gasPrice(model), decision.Nonce)
	if err != nil {
		if errors.Is(err, chainclient.ErrTxRejected) {
			return nil, errors.Wrapf(err, "submission rejected for model %s nonce %d", modelId, decision.Nonce)
		}
		return nil, Recoverable(errors.Wrapf(err, "submission failed for model %s nonce %d", modelId, decision.Nonce))
	}

	logging.Info("Submitted worker payload", logging.Submission,
		"modelId", modelId, "topicId", model.TopicId, "nonce", decision.Nonce, "txHash", result.TxHash)
	return &Outcome{Status: StatusSubmitted, Nonce: decision.Nonce, TxHash: result.TxHash}, nil
}

// loadMnemonic resolves the model's signing key. A missing mnemonic means the
// wallet state is corrupt; redelivery cannot fix that.
func (p *Pipeline) loadMnemonic(ctx context.Context, model store.Model) (string, error) {
	w, ok, err := p.store.GetWallet(ctx, model.WalletId)
	if err != nil {
		return "", Recoverable(errors.Wrap(err, "failed to load wallet"))
	}
	if !ok {
		return "", errors.Errorf("wallet %s for model %s does not exist", model.WalletId, model.Id)
	}
	mnemonic, ok, err := p.secrets.Get(ctx, w.SecretRef)
	if err != nil {
		return "", Recoverable(errors.Wrap(err, "failed to read wallet secret"))
	}
	if !ok {
		return "", errors.Errorf("mnemonic missing for wallet %s (secret %s)", w.Id, w.SecretRef)
	}
	return mnemonic, nil
}

func (p *Pipeline) gasPrice(model store.Model) uint64 {
	if model.MaxGasPrice == nil {
		return p.defaultGasPrice
	}
	price, err := strconv.ParseUint(*model.MaxGasPrice, 10, 64)
	if err != nil || price == 0 {
		logging.Warn("Invalid max gas price on model, using default", logging.Submission,
			"modelId", model.Id, "maxGasPrice", *model.MaxGasPrice, "default", p.defaultGasPrice)
		return p.defaultGasPrice
	}
	return price
}
