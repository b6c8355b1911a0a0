package registration

import (
	"context"

	"model-api/chainclient"
	"model-api/logging"
	"model-api/secrets"
	"model-api/store"
	"model-api/wallet"

	sdkerrors "cosmossdk.io/errors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Request describes a model to onboard.
type Request struct {
	UserId       string  `json:"user_id"`
	TopicId      uint64  `json:"topic_id"`
	WebhookUrl   string  `json:"webhook_url"`
	IsInferer    bool    `json:"is_inferer"`
	IsForecaster bool    `json:"is_forecaster"`
	MaxGasPrice  *string `json:"max_gas_price,omitempty"`
}

// Result is returned on successful onboarding. CostsIncurred is the total
// amount moved out of the treasury.
type Result struct {
	ModelId       string `json:"model_id"`
	WalletAddress string `json:"wallet_address"`
	CostsIncurred int64  `json:"costs_incurred"`
}

type Treasury struct {
	SecretRef       string
	RegistrationFee int64
	InitialFunding  int64
}

// Service runs the onboarding saga: validate topic, provision wallet, fund it
// from the treasury, register the worker on chain, persist the model. Steps
// before funding are compensated in reverse order on failure. Funding is the
// point of no return: once coins have moved, nothing is rolled back and any
// later failure is reported as critical so an operator can reconcile by hand.
type Service struct {
	chain       chainclient.ChainBridge
	provisioner *wallet.Provisioner
	secrets     secrets.Store
	store       *store.Store
	treasury    Treasury
}

func NewService(
	chain chainclient.ChainBridge,
	provisioner *wallet.Provisioner,
	secretStore secrets.Store,
	st *store.Store,
	treasury Treasury,
) *Service {
	return &Service{
		chain:       chain,
		provisioner: provisioner,
		secrets:     secretStore,
		store:       st,
		treasury:    treasury,
	}
}

func (s *Service) RegisterModel(ctx context.Context, req Request) (*Result, error) {
	if req.WebhookUrl == "" {
		return nil, sdkerrors.Wrap(ErrInvalidRequest, "webhook url is required")
	}
	if !req.IsInferer && !req.IsForecaster {
		return nil, sdkerrors.Wrap(ErrInvalidRequest, "model must be an inferer or a forecaster")
	}

	// Compensations run in reverse order when a pre-funding step fails.
	var compensations []func()
	rollback := func() {
		for i := len(compensations) - 1; i >= 0; i-- {
			compensations[i]()
		}
	}

	// Step 1: the topic must exist and be accepting workers.
	topic, err := s.chain.GetTopicDetails(ctx, req.TopicId)
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrTopicUnavailable, "failed to query topic %d: %v", req.TopicId, err)
	}
	if topic == nil {
		return nil, sdkerrors.Wrapf(ErrTopicUnavailable, "topic %d does not exist", req.TopicId)
	}
	if !topic.IsActive {
		return nil, sdkerrors.Wrapf(ErrTopicUnavailable, "topic %d is not active", req.TopicId)
	}

	// Step 2: provision a wallet. Its secret is the only state to undo.
	w, err := s.provisioner.Create(ctx)
	if err != nil {
		return nil, sdkerrors.Wrapf(ErrWalletCreation, "%v", err)
	}
	compensations = append(compensations, func() {
		if err := s.provisioner.Destroy(ctx, w); err != nil {
			logging.Error("Rollback failed to destroy wallet secret", logging.Registration,
				"err", err, "walletId", w.Id, "secretRef", w.SecretRef)
		}
	})

	// Step 3: the treasury mnemonic must be available before we touch funds.
	treasuryMnemonic, ok, err := s.secrets.Get(ctx, s.treasury.SecretRef)
	if err != nil {
		rollback()
		return nil, sdkerrors.Wrapf(ErrTreasuryUnavailable, "failed to read treasury secret: %v", err)
	}
	if !ok {
		rollback()
		return nil, sdkerrors.Wrapf(ErrTreasuryUnavailable, "treasury secret %s not found", s.treasury.SecretRef)
	}

	// Step 4: fund the wallet. This is the point of no return.
	amount := s.treasury.RegistrationFee + s.treasury.InitialFunding
	if _, err := s.chain.TransferFunds(ctx, treasuryMnemonic, w.Address, amount); err != nil {
		rollback()
		return nil, sdkerrors.Wrapf(ErrFunding, "failed to fund wallet %s with %d: %v", w.Address, amount, err)
	}

	modelId := uuid.New().String()
	logging.Info("Funded model wallet", logging.Registration,
		"modelId", modelId, "address", w.Address, "amount", amount)

	// Step 5: register the worker on chain. Already-registered is fine.
	workerMnemonic, ok, err := s.secrets.Get(ctx, w.SecretRef)
	if err != nil || !ok {
		s.reportStranded(modelId, w, errors.New("wallet mnemonic unreadable after funding"))
		return nil, sdkerrors.Wrapf(ErrWorkerRegistration, "wallet secret %s unreadable", w.SecretRef)
	}
	if _, err := s.chain.RegisterWorker(ctx, workerMnemonic, req.TopicId); err != nil {
		if !errors.Is(err, chainclient.ErrWorkerAlreadyRegistered) {
			s.reportStranded(modelId, w, err)
			return nil, sdkerrors.Wrapf(ErrWorkerRegistration, "topic %d: %v", req.TopicId, err)
		}
	}

	// Step 6: persist. A failure here strands a funded wallet; never delete
	// its secret, just shout.
	model := store.Model{
		Id:           modelId,
		UserId:       req.UserId,
		TopicId:      req.TopicId,
		WalletId:     w.Id,
		WebhookUrl:   req.WebhookUrl,
		IsInferer:    req.IsInferer,
		IsForecaster: req.IsForecaster,
		MaxGasPrice:  req.MaxGasPrice,
		Active:       true,
	}
	record := store.WalletRecord{Id: w.Id, Address: w.Address, SecretRef: w.SecretRef}
	if err := s.store.SaveModelWithWallet(ctx, model, record); err != nil {
		s.reportStranded(modelId, w, err)
		return nil, sdkerrors.Wrapf(ErrModelNotPersisted, "%v", err)
	}

	logging.Info("Model registered", logging.Registration,
		"modelId", modelId, "userId", req.UserId, "topicId", req.TopicId, "address", w.Address)
	return &Result{ModelId: modelId, WalletAddress: w.Address, CostsIncurred: amount}, nil
}

// reportStranded logs a funded wallet that did not make it into the database.
// The secret ref and address are everything an operator needs to recover the
// funds manually.
func (s *Service) reportStranded(modelId string, w *wallet.Wallet, cause error) {
	logging.Error("CRITICAL: wallet funded but model not persisted, manual reconciliation required",
		logging.Registration, "err", cause,
		"modelId", modelId, "walletId", w.Id, "address", w.Address, "secretRef", w.SecretRef)
}
