package chainclient

import (
	"context"
	"sync"
)

// MockBridge is an in-memory ChainBridge for tests: inject state and errors,
// inspect call counts and the last submitted transaction.
type MockBridge struct {
	Mu sync.Mutex

	// Chain state
	Topics         map[uint64]*TopicDetails
	Height         int64
	OpenNonce      int64
	OpenNonceSet   bool
	Inferers       []string
	Forecasters    []string
	Reputers       []string
	Performance    *WorkerPerformance
	SubmitTxHash   string
	AlreadyOnTopic bool

	// Error injection
	TopicErr       error
	HeightErr      error
	WorkersErr     error
	NonceErr       error
	SubmitErr      error
	TransferErr    error
	RegisterErr    error
	PerformanceErr error

	// Call tracking
	GetTopicCalled    int
	GetHeightCalled   int
	GetWorkersCalled  int
	DeriveNonceCalled int
	SubmitCalled      int
	TransferCalled    int
	RegisterCalled    int
	PerformanceCalled int

	// Capture parameters
	LastSubmit struct {
		Mnemonic string
		TopicId  uint64
		Payload  *WorkerPayload
		GasPrice uint64
		Nonce    int64
	}
	LastTransfer struct {
		FromMnemonic string
		ToAddress    string
		Amount       int64
	}
	LastRegister struct {
		Mnemonic string
		TopicId  uint64
	}
}

func NewMockBridge() *MockBridge {
	return &MockBridge{
		Topics:       make(map[uint64]*TopicDetails),
		SubmitTxHash: "mock-tx-hash",
	}
}

func (m *MockBridge) GetTopicDetails(ctx context.Context, topicId uint64) (*TopicDetails, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.GetTopicCalled++
	if m.TopicErr != nil {
		return nil, m.TopicErr
	}
	return m.Topics[topicId], nil
}

func (m *MockBridge) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.GetHeightCalled++
	if m.HeightErr != nil {
		return 0, m.HeightErr
	}
	return m.Height, nil
}

func (m *MockBridge) GetActiveInferers(ctx context.Context, topicId uint64) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.GetWorkersCalled++
	if m.WorkersErr != nil {
		return nil, m.WorkersErr
	}
	return m.Inferers, nil
}

func (m *MockBridge) GetActiveForecasters(ctx context.Context, topicId uint64) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.GetWorkersCalled++
	if m.WorkersErr != nil {
		return nil, m.WorkersErr
	}
	return m.Forecasters, nil
}

func (m *MockBridge) GetActiveReputers(ctx context.Context, topicId uint64) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.GetWorkersCalled++
	if m.WorkersErr != nil {
		return nil, m.WorkersErr
	}
	return m.Reputers, nil
}

func (m *MockBridge) DeriveLatestOpenWorkerNonce(ctx context.Context, topicId uint64) (int64, bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.DeriveNonceCalled++
	if m.NonceErr != nil {
		return 0, false, m.NonceErr
	}
	return m.OpenNonce, m.OpenNonceSet, nil
}

func (m *MockBridge) SubmitWorkerPayload(ctx context.Context, mnemonic string, topicId uint64, payload *WorkerPayload, gasPrice uint64, nonce int64) (*TxResult, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SubmitCalled++
	m.LastSubmit.Mnemonic = mnemonic
	m.LastSubmit.TopicId = topicId
	m.LastSubmit.Payload = payload
	m.LastSubmit.GasPrice = gasPrice
	m.LastSubmit.Nonce = nonce
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	return &TxResult{TxHash: m.SubmitTxHash}, nil
}

func (m *MockBridge) TransferFunds(ctx context.Context, fromMnemonic string, toAddress string, amount int64) (*TxResult, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.TransferCalled++
	m.LastTransfer.FromMnemonic = fromMnemonic
	m.LastTransfer.ToAddress = toAddress
	m.LastTransfer.Amount = amount
	if m.TransferErr != nil {
		return nil, m.TransferErr
	}
	return &TxResult{TxHash: m.SubmitTxHash}, nil
}

func (m *MockBridge) RegisterWorker(ctx context.Context, mnemonic string, topicId uint64) (*TxResult, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RegisterCalled++
	m.LastRegister.Mnemonic = mnemonic
	m.LastRegister.TopicId = topicId
	if m.RegisterErr != nil {
		return nil, m.RegisterErr
	}
	if m.AlreadyOnTopic {
		return &TxResult{TxHash: m.SubmitTxHash}, ErrWorkerAlreadyRegistered
	}
	return &TxResult{TxHash: m.SubmitTxHash}, nil
}

func (m *MockBridge) GetWorkerPerformance(ctx context.Context, topicId uint64, address string) (*WorkerPerformance, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.PerformanceCalled++
	if m.PerformanceErr != nil {
		return nil, m.PerformanceErr
	}
	return m.Performance, nil
}

// Ensure MockBridge implements ChainBridge
var _ ChainBridge = (*MockBridge)(nil)
